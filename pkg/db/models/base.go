package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert so rows created through
// gorm never depend on a database-side uuid default.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error         { assignID(&p.ID); return nil }
func (c *CommissionRate) BeforeCreate(*gorm.DB) error  { assignID(&c.ID); return nil }
func (t *Trade) BeforeCreate(*gorm.DB) error           { assignID(&t.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error         { assignID(&p.ID); return nil }
func (d *Deal) BeforeCreate(*gorm.DB) error            { assignID(&d.ID); return nil }
func (d *Delivery) BeforeCreate(*gorm.DB) error        { assignID(&d.ID); return nil }
func (w *WalletLog) BeforeCreate(*gorm.DB) error       { assignID(&w.ID); return nil }
func (r *Review) BeforeCreate(*gorm.DB) error          { assignID(&r.ID); return nil }
func (p *PaymentErrorLog) BeforeCreate(*gorm.DB) error { assignID(&p.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error    { assignID(&n.ID); return nil }
func (o *OutboxEvent) BeforeCreate(*gorm.DB) error     { assignID(&o.ID); return nil }
func (o *OutboxDLQ) BeforeCreate(*gorm.DB) error       { assignID(&o.ID); return nil }
