package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name          string          `gorm:"type:text;not null" json:"name"`
	Slug          string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	Description   *string         `gorm:"type:text" json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stockQuantity"`
	Images        []ProductImage  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"images"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

type ProductImage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"productId"`
	ImageURL  string    `gorm:"type:text;not null" json:"imageUrl"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
