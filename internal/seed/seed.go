// Package seed loads reference data (zones, spaces, rates, shifts and their bindings)
// from a YAML file into storage. Entries are keyed by their natural key, so a file can be
// applied on every start.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BearBump/ParkBox/internal/billing"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.yaml.in/yaml/v4"
)

type Store interface {
	UpsertZone(ctx context.Context, z *models.Zone) error
	UpsertSpace(ctx context.Context, sp *models.Space) error
	UpsertRate(ctx context.Context, r *models.Rate) error
	UpsertShift(ctx context.Context, sh *models.Shift) error
	BindShiftRate(ctx context.Context, b *models.ParkingShiftRate) error
}

type File struct {
	Zones      []Zone      `yaml:"zones"`
	Rates      []Rate      `yaml:"rates"`
	Shifts     []Shift     `yaml:"shifts"`
	ShiftRates []ShiftRate `yaml:"shift_rates"`
}

type Zone struct {
	ParkingID   uint64   `yaml:"parking_id"`
	Name        string   `yaml:"name"`
	Code        string   `yaml:"code"`
	Address     string   `yaml:"address"`
	Description string   `yaml:"description"`
	CameraIDs   []string `yaml:"camera_ids"`
	Status      string   `yaml:"status"`
	Spaces      []Space  `yaml:"spaces"`
}

type Space struct {
	Code              string   `yaml:"code"`
	Type              string   `yaml:"type"`
	Description       string   `yaml:"description"`
	Width             *float64 `yaml:"width"`
	Length            *float64 `yaml:"length"`
	SensorID          string   `yaml:"sensor_id"`
	HasCameraCoverage bool     `yaml:"has_camera_coverage"`
}

type Rate struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Amount        string `yaml:"amount"`
	Currency      string `yaml:"currency"`
	BillingPolicy string `yaml:"billing_policy"`
	Active        *bool  `yaml:"active"`
}

// Shift windows use "HH:MM"; an end before the start crosses midnight.
type Shift struct {
	Name   string `yaml:"name"`
	Code   string `yaml:"code"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	Active *bool  `yaml:"active"`
}

// ShiftRate references a shift by code and a rate by name.
type ShiftRate struct {
	ParkingID uint64 `yaml:"parking_id"`
	Shift     string `yaml:"shift"`
	Rate      string `yaml:"rate"`
	Active    *bool  `yaml:"active"`
}

type Result struct {
	Zones      int
	Spaces     int
	Rates      int
	Shifts     int
	ShiftRates int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal seed file")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	zoneCodes := map[string]bool{}
	for _, z := range f.Zones {
		if z.ParkingID == 0 || strings.TrimSpace(z.Code) == "" || strings.TrimSpace(z.Name) == "" {
			return errors.Errorf("zone %q: parking_id, code and name are required", z.Code)
		}
		key := fmt.Sprintf("%d/%s", z.ParkingID, z.Code)
		if zoneCodes[key] {
			return errors.Errorf("zone %q: duplicate code", z.Code)
		}
		zoneCodes[key] = true
		if !validZoneStatus(models.ZoneStatus(z.Status)) {
			return errors.Errorf("zone %q: unknown status %q", z.Code, z.Status)
		}
		for _, sp := range z.Spaces {
			if strings.TrimSpace(sp.Code) == "" {
				return errors.Errorf("zone %q: space without code", z.Code)
			}
			if !validSpaceType(models.SpaceType(sp.Type)) {
				return errors.Errorf("space %q: unknown type %q", sp.Code, sp.Type)
			}
		}
	}

	rates := map[string]bool{}
	for _, r := range f.Rates {
		if strings.TrimSpace(r.Name) == "" {
			return errors.New("rate without name")
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return errors.Wrapf(err, "rate %q: amount", r.Name)
		}
		if !amount.IsPositive() {
			return errors.Errorf("rate %q: amount must be positive", r.Name)
		}
		if !billing.Policy(r.BillingPolicy).Valid() {
			return errors.Errorf("rate %q: unknown billing policy %q", r.Name, r.BillingPolicy)
		}
		rates[r.Name] = true
	}

	shifts := map[string]bool{}
	for _, sh := range f.Shifts {
		if strings.TrimSpace(sh.Code) == "" {
			return errors.New("shift without code")
		}
		if _, err := parseClock(sh.Start); err != nil {
			return errors.Wrapf(err, "shift %q: start", sh.Code)
		}
		if _, err := parseClock(sh.End); err != nil {
			return errors.Wrapf(err, "shift %q: end", sh.Code)
		}
		shifts[sh.Code] = true
	}

	for _, b := range f.ShiftRates {
		if b.ParkingID == 0 {
			return errors.Errorf("shift rate %s/%s: parking_id is required", b.Shift, b.Rate)
		}
		if !shifts[b.Shift] {
			return errors.Errorf("shift rate: unknown shift %q", b.Shift)
		}
		if !rates[b.Rate] {
			return errors.Errorf("shift rate: unknown rate %q", b.Rate)
		}
	}
	return nil
}

// Apply upserts everything in f. It stops at the first storage error.
func Apply(ctx context.Context, st Store, f *File) (Result, error) {
	var res Result

	for _, z := range f.Zones {
		zone := &models.Zone{
			ParkingID:   z.ParkingID,
			Name:        z.Name,
			Code:        z.Code,
			Address:     optional(z.Address),
			Description: optional(z.Description),
			CameraIDs:   z.CameraIDs,
			Status:      models.ZoneStatus(z.Status),
		}
		if err := st.UpsertZone(ctx, zone); err != nil {
			return res, errors.Wrapf(err, "zone %s", z.Code)
		}
		res.Zones++

		for _, s := range z.Spaces {
			sp := &models.Space{
				ZoneID:            zone.ID,
				Code:              s.Code,
				Type:              models.SpaceType(s.Type),
				Description:       optional(s.Description),
				Width:             s.Width,
				Length:            s.Length,
				SensorID:          optional(s.SensorID),
				HasCameraCoverage: s.HasCameraCoverage,
			}
			if err := st.UpsertSpace(ctx, sp); err != nil {
				return res, errors.Wrapf(err, "space %s/%s", z.Code, s.Code)
			}
			res.Spaces++
		}
	}

	rateIDs := make(map[string]uint64, len(f.Rates))
	for _, r := range f.Rates {
		rate := &models.Rate{
			Name:          r.Name,
			Description:   optional(r.Description),
			Amount:        decimal.RequireFromString(r.Amount),
			Currency:      r.Currency,
			BillingPolicy: billing.Policy(r.BillingPolicy),
			Active:        enabled(r.Active),
		}
		if err := st.UpsertRate(ctx, rate); err != nil {
			return res, errors.Wrapf(err, "rate %s", r.Name)
		}
		rateIDs[r.Name] = rate.ID
		res.Rates++
	}

	shiftIDs := make(map[string]uint64, len(f.Shifts))
	for _, s := range f.Shifts {
		start, _ := parseClock(s.Start)
		end, _ := parseClock(s.End)
		sh := &models.Shift{
			Name:        s.Name,
			Code:        s.Code,
			StartMinute: start,
			EndMinute:   end,
			Active:      enabled(s.Active),
		}
		if err := st.UpsertShift(ctx, sh); err != nil {
			return res, errors.Wrapf(err, "shift %s", s.Code)
		}
		shiftIDs[s.Code] = sh.ID
		res.Shifts++
	}

	for _, b := range f.ShiftRates {
		binding := &models.ParkingShiftRate{
			ParkingID: b.ParkingID,
			ShiftID:   shiftIDs[b.Shift],
			RateID:    rateIDs[b.Rate],
			Active:    enabled(b.Active),
		}
		if err := st.BindShiftRate(ctx, binding); err != nil {
			return res, errors.Wrapf(err, "shift rate %s/%s", b.Shift, b.Rate)
		}
		res.ShiftRates++
	}

	slog.Info("reference data seeded",
		"zones", res.Zones, "spaces", res.Spaces, "rates", res.Rates,
		"shifts", res.Shifts, "shift_rates", res.ShiftRates)
	return res, nil
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func validZoneStatus(s models.ZoneStatus) bool {
	switch s {
	case "", models.ZoneActive, models.ZoneInactive, models.ZoneMaintenance, models.ZoneOutOfService:
		return true
	}
	return false
}

func validSpaceType(t models.SpaceType) bool {
	switch t {
	case "", models.SpaceParallel, models.SpaceDiagonal, models.SpacePerpendicular:
		return true
	}
	return false
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func enabled(b *bool) bool {
	return b == nil || *b
}
