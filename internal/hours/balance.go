package hours

import (
	"context"
	"math"
	"strings"

	"clubhours/internal/apperr"
	"clubhours/internal/metrics"
	"clubhours/internal/model"
	"clubhours/internal/store"
)

// RoundHalf quantizes x to the nearest 0.5. Exact quarters round up, so
// 1.25 becomes 1.5 and -1.25 becomes -1.
func RoundHalf(x float64) float64 {
	return math.Floor(x*2+0.5) / 2
}

// SplitTotal spreads newTotal over the two buckets in the current
// volunteering/social ratio. Rounding drift is pushed onto the larger bucket
// so the halves always sum to the rounded total. A student with nothing in
// either bucket gets everything as volunteering.
func SplitTotal(volunteering, social, newTotal float64) (float64, float64) {
	total := math.Max(0, RoundHalf(newTotal))
	current := volunteering + social
	if current <= 0 {
		return total, 0
	}

	v := RoundHalf(total * volunteering / current)
	s := RoundHalf(total * social / current)
	if diff := total - (v + s); math.Abs(diff) > 0.01 {
		if v >= s {
			v = RoundHalf(v + diff)
		} else {
			s = RoundHalf(s + diff)
		}
	}
	return math.Max(0, v), math.Max(0, s)
}

// Adjustment changes a student's combined total by Delta.
type Adjustment struct {
	SNumber string  `json:"s_number" validate:"required"`
	Delta   float64 `json:"delta"`
	Reason  string  `json:"reason" validate:"max=500"`
	Admin   string  `json:"-"`
}

// AdjustTotal applies a manual +/- to the combined balance, keeping the
// bucket ratio, and writes one audit row per bucket that moved.
func (s *Service) AdjustTotal(ctx context.Context, adj Adjustment) (model.Student, error) {
	if err := s.validate(adj); err != nil {
		return model.Student{}, err
	}
	if adj.Delta == 0 {
		return model.Student{}, apperr.E(apperr.InvalidInput, "adjustment must not be zero")
	}
	sNumber := normalizeSNumber(adj.SNumber)

	var out model.Student
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		st, err := tx.Students().Lock(ctx, sNumber)
		if err != nil {
			return err
		}
		current := st.VolunteeringHours + st.SocialHours
		v, soc := SplitTotal(st.VolunteeringHours, st.SocialHours, current+adj.Delta)

		at := s.now()
		if out, err = tx.Students().SetBalance(ctx, sNumber, v, soc, at); err != nil {
			return err
		}
		for _, b := range []model.Bucket{model.Volunteering, model.Social} {
			before, after := st.Hours(b), out.Hours(b)
			if before == after {
				continue
			}
			rec := adjustmentRecord(st, "total", b, before, after, adj.Reason, adj.Admin, at)
			if _, err := tx.HourRequests().Insert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Student{}, err
	}
	metrics.BalanceAdjustments.WithLabelValues("total").Inc()
	s.log.WithField("student", sNumber).WithField("delta", adj.Delta).Info("balance adjusted")
	return out, nil
}

// BucketSet overwrites one bucket.
type BucketSet struct {
	SNumber string  `json:"s_number" validate:"required"`
	Bucket  string  `json:"bucket" validate:"required"`
	Value   float64 `json:"value" validate:"gte=0"`
	Reason  string  `json:"reason" validate:"max=500"`
	Admin   string  `json:"-"`
}

// SetBucket sets a single bucket to a rounded value.
func (s *Service) SetBucket(ctx context.Context, in BucketSet) (model.Student, error) {
	if err := s.validate(in); err != nil {
		return model.Student{}, err
	}
	b, ok := model.ParseBucket(in.Bucket)
	if !ok {
		return model.Student{}, apperr.E(apperr.InvalidInput, "bucket must be volunteering or social")
	}
	sNumber := normalizeSNumber(in.SNumber)
	value := math.Max(0, RoundHalf(in.Value))

	var out model.Student
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		st, err := tx.Students().Lock(ctx, sNumber)
		if err != nil {
			return err
		}
		v, soc := st.VolunteeringHours, st.SocialHours
		if b == model.Social {
			soc = value
		} else {
			v = value
		}
		at := s.now()
		if out, err = tx.Students().SetBalance(ctx, sNumber, v, soc, at); err != nil {
			return err
		}
		if st.Hours(b) == value {
			return nil
		}
		_, err = tx.HourRequests().Insert(ctx, adjustmentRecord(st, string(b), b, st.Hours(b), value, in.Reason, in.Admin, at))
		return err
	})
	if err != nil {
		return model.Student{}, err
	}
	metrics.BalanceAdjustments.WithLabelValues(string(b)).Inc()
	return out, nil
}

// TransferInput moves hours between buckets.
type TransferInput struct {
	SNumber string  `json:"s_number" validate:"required"`
	Amount  float64 `json:"amount" validate:"gt=0"`
	From    string  `json:"from" validate:"required"`
	To      string  `json:"to" validate:"required"`
	Reason  string  `json:"reason" validate:"max=500"`
	Admin   string  `json:"-"`
}

// Transfer moves Amount (rounded to a half) from one bucket to the other and
// records a single audit row with the before and after of both.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (model.Student, error) {
	if err := s.validate(in); err != nil {
		return model.Student{}, err
	}
	from, okFrom := model.ParseBucket(in.From)
	to, okTo := model.ParseBucket(in.To)
	if !okFrom || !okTo || strings.TrimSpace(in.From) == "" || strings.TrimSpace(in.To) == "" {
		return model.Student{}, apperr.E(apperr.InvalidInput, "buckets must be volunteering or social")
	}
	if from == to {
		return model.Student{}, apperr.E(apperr.InvalidInput, "cannot transfer hours into the same bucket")
	}
	amount := RoundHalf(in.Amount)
	if amount <= 0 {
		return model.Student{}, apperr.E(apperr.InvalidInput, "amount must be at least 0.5")
	}
	sNumber := normalizeSNumber(in.SNumber)

	var out model.Student
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		st, err := tx.Students().Lock(ctx, sNumber)
		if err != nil {
			return err
		}
		if amount > st.Hours(from) {
			return apperr.E(apperr.InvalidInput, "not enough "+from.Label()+" to transfer")
		}
		v, soc := st.VolunteeringHours, st.SocialHours
		if from == model.Volunteering {
			v, soc = RoundHalf(v-amount), RoundHalf(soc+amount)
		} else {
			v, soc = RoundHalf(v+amount), RoundHalf(soc-amount)
		}
		at := s.now()
		if out, err = tx.Students().SetBalance(ctx, sNumber, v, soc, at); err != nil {
			return err
		}
		_, err = tx.HourRequests().Insert(ctx, transferRecord(st, out, amount, from, to, in.Reason, in.Admin, at))
		return err
	})
	if err != nil {
		return model.Student{}, err
	}
	metrics.BalanceAdjustments.WithLabelValues("transfer").Inc()
	s.log.WithField("student", sNumber).WithField("amount", amount).Infof("transferred %s to %s", from, to)
	return out, nil
}
