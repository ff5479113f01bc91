package model

import "time"

// Типы позиций каталога, доступных для покупки.
const (
	ItemTypeCourse   = "course"
	ItemTypeResource = "resource"
)

// IsValidItemType проверяет тип позиции каталога.
func IsValidItemType(t string) bool {
	return t == ItemTypeCourse || t == ItemTypeResource
}

// Course — курс каталога.
// Хранится в таблице courses.
type Course struct {
	ID    string
	Slug  string
	Title string
	// Price — цена в минимальных единицах валюты
	Price    int64
	Currency string
	// AccessDurationMonths — срок доступа после зачисления (nil — бессрочно)
	AccessDurationMonths *int
	Published            bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Resource — ресурс маркетплейса (загружаемый или лицензируемый материал).
// Хранится в таблице resources.
type Resource struct {
	ID        string
	Slug      string
	Title     string
	Price     int64
	Currency  string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CatalogItem — общее представление курса или ресурса для заявки на покупку.
type CatalogItem struct {
	Type     string
	ID       string
	Title    string
	Price    int64
	Currency string
	// AccessDurationMonths — только для курсов
	AccessDurationMonths *int
	Published            bool
}

// Item возвращает представление курса как позиции каталога.
func (c *Course) Item() *CatalogItem {
	return &CatalogItem{
		Type:                 ItemTypeCourse,
		ID:                   c.ID,
		Title:                c.Title,
		Price:                c.Price,
		Currency:             c.Currency,
		AccessDurationMonths: c.AccessDurationMonths,
		Published:            c.Published,
	}
}

// Item возвращает представление ресурса как позиции каталога.
func (r *Resource) Item() *CatalogItem {
	return &CatalogItem{
		Type:      ItemTypeResource,
		ID:        r.ID,
		Title:     r.Title,
		Price:     r.Price,
		Currency:  r.Currency,
		Published: r.Published,
	}
}
