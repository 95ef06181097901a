package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/invorya/inventory-core/internal/domain"
	"github.com/invorya/inventory-core/internal/domain/entity"
)

// batchChunkSize operaciones por tanda concurrente.
const batchChunkSize = 100

// BatchOperationType tipo de una operación del lote.
type BatchOperationType string

const (
	BatchAdd    BatchOperationType = "ADD"
	BatchRemove BatchOperationType = "REMOVE"
	BatchAdjust BatchOperationType = "ADJUST"
)

// BatchOperation una operación del lote. Solo el campo del tipo declarado se lee.
type BatchOperation struct {
	Type   BatchOperationType
	Add    *AddStockRequest
	Remove *RemoveStockRequest
	Adjust *AdjustStockRequest
}

// BatchResult resultado por operación, en el índice de la operación original.
type BatchResult struct {
	Index     int
	Type      BatchOperationType
	Movements []*entity.Movement
	Alerts    []*entity.Alert
	Err       error
}

// ProcessBatchOperations ejecuta el lote en tandas de cien: las operaciones de
// una tanda corren concurrentes y las tandas en secuencia. Cada operación falla
// de forma independiente; su error queda en el resultado de su índice y no
// afecta al resto. La serialización por ítem del servicio sigue vigente, así
// que operaciones concurrentes sobre el mismo ítem dentro de una tanda se
// ordenan entre sí.
func (s *Service) ProcessBatchOperations(ctx context.Context, ops []BatchOperation) []BatchResult {
	results := make([]BatchResult, len(ops))
	for start := 0; start < len(ops); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(ops) {
			end = len(ops)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, op BatchOperation) {
				defer wg.Done()
				results[idx] = s.runBatchOperation(ctx, idx, op)
			}(i, ops[i])
		}
		wg.Wait()
	}
	return results
}

func (s *Service) runBatchOperation(ctx context.Context, idx int, op BatchOperation) BatchResult {
	res := BatchResult{Index: idx, Type: op.Type}
	switch op.Type {
	case BatchAdd:
		if op.Add == nil {
			res.Err = fmt.Errorf("%w: operación ADD sin datos", domain.ErrInvalidInput)
			return res
		}
		out, err := s.AddStock(ctx, *op.Add)
		if err != nil {
			res.Err = err
			return res
		}
		res.Movements = []*entity.Movement{out.Movement}
		res.Alerts = out.Alerts
	case BatchRemove:
		if op.Remove == nil {
			res.Err = fmt.Errorf("%w: operación REMOVE sin datos", domain.ErrInvalidInput)
			return res
		}
		out, err := s.RemoveStock(ctx, *op.Remove)
		if err != nil {
			res.Err = err
			return res
		}
		res.Movements = out.Movements
		res.Alerts = out.Alerts
	case BatchAdjust:
		if op.Adjust == nil {
			res.Err = fmt.Errorf("%w: operación ADJUST sin datos", domain.ErrInvalidInput)
			return res
		}
		out, err := s.AdjustStock(ctx, *op.Adjust)
		if err != nil {
			res.Err = err
			return res
		}
		res.Movements = []*entity.Movement{out.Movement}
		res.Alerts = out.Alerts
	default:
		res.Err = fmt.Errorf("%w: tipo de operación desconocido %q", domain.ErrInvalidInput, op.Type)
	}
	return res
}
