package ledger

import (
	"sort"
	"sync"

	"github.com/invorya/inventory-core/internal/domain/entity"
)

// Store estado en memoria del motor de lotes: lotes y movimientos por ítem.
// Se inyecta en el motor en la construcción para que instancias distintas no
// compartan estado por accidente. Los mapas se comparten entre todos los ítems:
// el RWMutex protege el acceso concurrente cuando ítems distintos operan en
// paralelo; la serialización de las mutaciones de un mismo ítem queda a cargo
// del servicio de orquestación.
type Store struct {
	mu        sync.RWMutex
	lots      map[string][]*entity.Lot
	movements map[string][]*entity.Movement
	loaded    map[string]bool
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		lots:      make(map[string][]*entity.Lot),
		movements: make(map[string][]*entity.Movement),
		loaded:    make(map[string]bool),
	}
}

// Load hidrata el estado de un ítem desde la persistencia. Los lotes quedan
// ordenados por fecha de compra ascendente; el orden de inserción se preserva
// en empates (orden estable, requerido por el consumo FIFO).
func (s *Store) Load(itemID string, lots []*entity.Lot, movements []*entity.Movement) {
	sorted := make([]*entity.Lot, len(lots))
	copy(sorted, lots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PurchaseDate.Before(sorted[j].PurchaseDate)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[itemID] = sorted
	s.movements[itemID] = append([]*entity.Movement(nil), movements...)
	s.loaded[itemID] = true
}

// Loaded indica si el ítem ya fue hidratado.
func (s *Store) Loaded(itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[itemID]
}

// Lots devuelve los lotes del ítem en orden FIFO.
func (s *Store) Lots(itemID string) []*entity.Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lots[itemID]
}

// Movements devuelve el historial de movimientos del ítem.
func (s *Store) Movements(itemID string) []*entity.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movements[itemID]
}

func (s *Store) insertLot(lot *entity.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lots := append(s.lots[lot.ItemID], lot)
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
	})
	s.lots[lot.ItemID] = lots
	s.loaded[lot.ItemID] = true
}

func (s *Store) appendMovement(m *entity.Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.ItemID] = append(s.movements[m.ItemID], m)
}
