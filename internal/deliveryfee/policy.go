package deliveryfee

import (
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Policy is one seller's delivery fee rules in minor currency units.
type Policy struct {
	GeneralFee      int64
	RemoteAreaFee   int64
	AmountThreshold int64
	VolumeThreshold int
	FreeByAmount    bool
	FreeByVolume    bool
}

// Charge returns the delivery fee for an order of orderTotal across itemCount items.
// The remote-area fee is flat and ignores both free-shipping thresholds.
func Charge(policy Policy, orderTotal int64, itemCount int, isRemoteArea bool) int64 {
	if isRemoteArea {
		return policy.RemoteAreaFee
	}
	if policy.FreeByAmount && orderTotal >= policy.AmountThreshold {
		return 0
	}
	if policy.FreeByVolume && itemCount >= policy.VolumeThreshold {
		return 0
	}
	return policy.GeneralFee
}

// FromModel maps a persisted seller policy.
func FromModel(row models.SellerShippingPolicy) Policy {
	return Policy{
		GeneralFee:      row.GeneralFee,
		RemoteAreaFee:   row.RemoteAreaFee,
		AmountThreshold: row.AmountThreshold,
		VolumeThreshold: row.VolumeThreshold,
		FreeByAmount:    row.FreeByAmount,
		FreeByVolume:    row.FreeByVolume,
	}
}

// DefaultPolicy is applied to sellers that never configured their own rules.
// A zero threshold disables the matching free-shipping rule.
func DefaultPolicy(cfg config.SettlementConfig) Policy {
	return Policy{
		GeneralFee:      cfg.DefaultGeneralFee,
		RemoteAreaFee:   cfg.DefaultRemoteAreaFee,
		AmountThreshold: cfg.DefaultAmountThreshold,
		VolumeThreshold: cfg.DefaultVolumeThreshold,
		FreeByAmount:    cfg.DefaultAmountThreshold > 0,
		FreeByVolume:    cfg.DefaultVolumeThreshold > 0,
	}
}

// SellerTotals is the folded result for one seller.
type SellerTotals struct {
	SellerID   uuid.UUID
	TotalGoods int64
	ItemCount  int
	Charge     int64
}

// Total is goods plus delivery charge.
func (t SellerTotals) Total() int64 {
	return t.TotalGoods + t.Charge
}

// Accumulator folds line items per seller and decides each seller's fee only
// once every item has been added, so thresholds see cumulative totals.
type Accumulator struct {
	order  []uuid.UUID
	totals map[uuid.UUID]*SellerTotals
}

func NewAccumulator() *Accumulator {
	return &Accumulator{totals: make(map[uuid.UUID]*SellerTotals)}
}

// Add folds one item priced at price into the seller's running totals.
func (a *Accumulator) Add(sellerID uuid.UUID, price int64) {
	entry, ok := a.totals[sellerID]
	if !ok {
		entry = &SellerTotals{SellerID: sellerID}
		a.totals[sellerID] = entry
		a.order = append(a.order, sellerID)
	}
	entry.TotalGoods += price
	entry.ItemCount++
}

// Finalize applies each seller's policy and returns the totals in the order
// sellers were first seen.
func (a *Accumulator) Finalize(policyFor func(sellerID uuid.UUID) Policy, isRemoteArea bool) []SellerTotals {
	out := make([]SellerTotals, 0, len(a.order))
	for _, sellerID := range a.order {
		entry := *a.totals[sellerID]
		entry.Charge = Charge(policyFor(sellerID), entry.TotalGoods, entry.ItemCount, isRemoteArea)
		out = append(out, entry)
	}
	return out
}
