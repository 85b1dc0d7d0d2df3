package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// MinLotQuantity is the smallest lot the warehouse accepts.
const MinLotQuantity = 20

type RegisterLotInput struct {
	ProductID uuid.UUID
	Quantity  int
	Reference *string
	UserID    uuid.UUID
	ActorRole enums.Role
}

type LotResult struct {
	ProductID uuid.UUID `json:"id_producto"`
	NewStock  int       `json:"stock"`
}

// MovementUser is the staff member who recorded a movement.
type MovementUser struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
}

type MovementView struct {
	ID                uuid.UUID          `json:"id_movimiento"`
	ProductID         uuid.UUID          `json:"id_producto"`
	ProductName       string             `json:"producto_nombre"`
	MovementType      enums.MovementType `json:"tipo_movimiento"`
	Quantity          int                `json:"cantidad"`
	CreatedAt         time.Time          `json:"fecha_movimiento"`
	ExternalReference *string            `json:"referencia_externa"`
	User              MovementUser       `json:"usuario"`
}

// LowStockItem is a product whose sellable stock is under the threshold of
// its inventory record.
type LowStockItem struct {
	ProductID   uuid.UUID `json:"id_producto"`
	ProductName string    `json:"nombre"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"stock_minimo"`
}
