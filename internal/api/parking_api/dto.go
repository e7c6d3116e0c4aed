package parking_api

import (
	"time"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/shopspring/decimal"
)

type entryRequest struct {
	Plate           string   `json:"plate"`
	DocumentTypeID  uint64   `json:"document_type_id"`
	DocumentNumber  string   `json:"document_number"`
	CustomerName    string   `json:"customer_name"`
	Phone           string   `json:"phone"`
	Email           string   `json:"email"`
	ZoneID          uint64   `json:"zone_id"`
	SpaceID         uint64   `json:"space_id"`
	Method          string   `json:"method"`
	PhotoURL        *string  `json:"photo_url"`
	PlateConfidence *float64 `json:"plate_confidence"`
	Notes           string   `json:"notes"`
}

type exitRequest struct {
	TransactionID   uint64   `json:"transaction_id"`
	Plate           string   `json:"plate"`
	DocumentTypeID  uint64   `json:"document_type_id"`
	DocumentNumber  string   `json:"document_number"`
	Method          string   `json:"method"`
	PhotoURL        *string  `json:"photo_url"`
	PlateConfidence *float64 `json:"plate_confidence"`
	Notes           string   `json:"notes"`
}

type paymentRequest struct {
	PaymentTypeID   uint64          `json:"payment_type_id"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
	SendReceipt     bool            `json:"send_receipt"`
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

type receiptStatusRequest struct {
	Channel string  `json:"channel"`
	Status  string  `json:"status"`
	Error   *string `json:"error"`
}

type spaceStatusRequest struct {
	Action string `json:"action"`
}

type paymentDTO struct {
	ID              uint64     `json:"id"`
	PaymentTypeID   uint64     `json:"payment_type_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	PaymentDate     time.Time  `json:"payment_date"`
	ReferenceNumber *string    `json:"reference_number,omitempty"`
	OperatorID      uint64     `json:"operator_id"`
	Status          string     `json:"status"`
	RefundAmount    *string    `json:"refund_amount,omitempty"`
	RefundDate      *time.Time `json:"refund_date,omitempty"`
	RefundReason    *string    `json:"refund_reason,omitempty"`
}

type transactionDTO struct {
	ID           uint64 `json:"id"`
	LicensePlate string `json:"license_plate"`
	CustomerName string `json:"customer_name,omitempty"`
	VehicleID    uint64 `json:"vehicle_id"`
	CustomerID   uint64 `json:"customer_id"`
	ZoneID       uint64 `json:"zone_id"`
	ZoneName     string `json:"zone_name,omitempty"`
	ZoneCode     string `json:"zone_code,omitempty"`
	SpaceID      uint64 `json:"space_id"`
	SpaceCode    string `json:"space_code,omitempty"`
	RateID       uint64 `json:"rate_id"`
	RateName     string `json:"rate_name,omitempty"`

	RateAmount    string `json:"rate_amount"`
	Currency      string `json:"currency"`
	BillingPolicy string `json:"billing_policy,omitempty"`

	EntryTime       time.Time  `json:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	ElapsedMinutes  int        `json:"elapsed_minutes"`
	Duration        string     `json:"duration"`

	CalculatedAmount *string `json:"calculated_amount,omitempty"`
	DiscountAmount   string  `json:"discount_amount"`
	TotalAmount      *string `json:"total_amount,omitempty"`
	EstimatedAmount  string  `json:"estimated_amount"`

	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Overdue       bool   `json:"overdue"`

	DocumentMismatch   bool       `json:"document_mismatch"`
	MismatchPending    bool       `json:"mismatch_pending"`
	MismatchResolvedAt *time.Time `json:"mismatch_resolved_at,omitempty"`

	EntryMethod        string  `json:"entry_method"`
	ExitMethod         *string `json:"exit_method,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	ReceiptSent           bool    `json:"receipt_sent"`
	ReceiptWhatsAppStatus *string `json:"receipt_whatsapp_status,omitempty"`
	ReceiptEmailStatus    *string `json:"receipt_email_status,omitempty"`

	Payment *paymentDTO `json:"payment,omitempty"`
}

type spaceDTO struct {
	ID     uint64 `json:"id"`
	ZoneID uint64 `json:"zone_id"`
	Code   string `json:"code"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type pageDTO struct {
	Items      []*transactionDTO `json:"items"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func toTransactionDTO(v *parking.TransactionView) *transactionDTO {
	if v == nil || v.Transaction == nil {
		return nil
	}
	t := v.Transaction
	out := &transactionDTO{
		ID:                    t.ID,
		LicensePlate:          t.LicensePlate,
		CustomerName:          t.CustomerName,
		VehicleID:             t.VehicleID,
		CustomerID:            t.CustomerID,
		ZoneID:                t.ZoneID,
		ZoneName:              t.ZoneName,
		ZoneCode:              t.ZoneCode,
		SpaceID:               t.SpaceID,
		SpaceCode:             t.SpaceCode,
		RateID:                t.RateID,
		RateName:              t.RateName,
		RateAmount:            money(t.RateAmount),
		Currency:              t.Currency,
		BillingPolicy:         string(t.BillingPolicy),
		EntryTime:             t.EntryTime,
		ExitTime:              t.ExitTime,
		DurationMinutes:       t.DurationMinutes,
		ElapsedMinutes:        v.ElapsedMinutes,
		Duration:              v.Duration,
		CalculatedAmount:      nullMoney(t.CalculatedAmount),
		DiscountAmount:        money(t.DiscountAmount),
		TotalAmount:           nullMoney(t.TotalAmount),
		EstimatedAmount:       money(v.EstimatedAmount),
		Status:                string(t.Status),
		PaymentStatus:         string(t.PaymentStatus),
		Overdue:               v.Overdue,
		DocumentMismatch:      t.DocumentMismatch,
		MismatchPending:       v.MismatchPending,
		MismatchResolvedAt:    t.MismatchResolvedAt,
		EntryMethod:           string(t.EntryMethod),
		Notes:                 t.Notes,
		CancellationReason:    t.CancellationReason,
		ReceiptSent:           t.ReceiptSent,
		ReceiptWhatsAppStatus: t.ReceiptWhatsAppStatus,
		ReceiptEmailStatus:    t.ReceiptEmailStatus,
	}
	if t.ExitMethod != nil {
		m := string(*t.ExitMethod)
		out.ExitMethod = &m
	}
	if p := v.Payment; p != nil {
		out.Payment = &paymentDTO{
			ID:              p.ID,
			PaymentTypeID:   p.PaymentTypeID,
			Amount:          money(p.Amount),
			Currency:        p.Currency,
			PaymentDate:     p.PaymentDate,
			ReferenceNumber: p.ReferenceNumber,
			OperatorID:      p.OperatorID,
			Status:          string(p.Status),
			RefundAmount:    nullMoney(p.RefundAmount),
			RefundDate:      p.RefundDate,
			RefundReason:    p.RefundReason,
		}
	}
	return out
}

func toPageDTO(res models.PageResult[*parking.TransactionView]) pageDTO {
	out := pageDTO{
		Items:      make([]*transactionDTO, 0, len(res.Items)),
		Page:       res.Number,
		Size:       res.Size,
		Total:      res.Total,
		TotalPages: res.TotalPages(),
	}
	for _, v := range res.Items {
		out.Items = append(out.Items, toTransactionDTO(v))
	}
	return out
}

func toSpaceDTO(sp *models.Space) spaceDTO {
	return spaceDTO{
		ID:     sp.ID,
		ZoneID: sp.ZoneID,
		Code:   sp.Code,
		Type:   string(sp.Type),
		Status: string(sp.Status),
	}
}
