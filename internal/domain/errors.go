package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrItemNotFound      = errors.New("ítem no encontrado")
	ErrLotNotFound       = errors.New("lote no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrInsufficientStock = errors.New("stock insuficiente para la cantidad solicitada")
	ErrNoStockAvailable  = errors.New("sin lotes con existencia disponible")
	ErrAlertNotFound     = errors.New("alerta no encontrada")
)
