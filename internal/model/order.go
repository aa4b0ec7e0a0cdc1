package model

import "time"

// --- Order Structures (mirroring the backend order feed) ---

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPreparing  OrderStatus = "PREPARING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusInDelivery OrderStatus = "IN_DELIVERY"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStatuses lists every status the status count view reports.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusCompleted,
	OrderStatusInDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Known() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type SubOrderStatus string

const (
	SubOrderStatusPending   SubOrderStatus = "PENDING"
	SubOrderStatusPreparing SubOrderStatus = "PREPARING"
	SubOrderStatusCompleted SubOrderStatus = "COMPLETED"
)

type Order struct {
	ID            int         `json:"id"`
	CustomerName  string      `json:"customerName"`
	DisplayNumber int         `json:"displayNumber"`
	StoreID       int         `json:"storeId"`
	Status        OrderStatus `json:"status"`
	Total         float64     `json:"total"`
	CreatedAt     time.Time   `json:"createdAt"`
	SubOrders     []SubOrder  `json:"subOrders"`
}

type SubOrder struct {
	ID          int                `json:"id"`
	OrderID     int                `json:"orderId"`
	Price       float64            `json:"price"`
	Status      SubOrderStatus     `json:"status"`
	ProductSize ProductSize        `json:"productSize"`
	Additives   []SubOrderAdditive `json:"additives"`
}

type ProductSize struct {
	ID              int     `json:"id"`
	ProductName     string  `json:"productName"`
	SizeName        string  `json:"sizeName"`
	Size            float64 `json:"size"`
	Unit            Unit    `json:"unit"`
	MachineID       string  `json:"machineId"`
	MachineCategory string  `json:"machineCategory"`
}

type Unit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type SubOrderAdditive struct {
	ID       int      `json:"id"`
	Additive Additive `json:"additive"`
}

type Additive struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	MachineID string `json:"machineId"`
}
