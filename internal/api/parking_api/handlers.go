package parking_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func (a *ParkingAPI) recordEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.RecordEntry(r.Context(), parking.EntryCommand{
		Plate:           req.Plate,
		DocumentTypeID:  req.DocumentTypeID,
		DocumentNumber:  req.DocumentNumber,
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		Email:           req.Email,
		ZoneID:          req.ZoneID,
		SpaceID:         req.SpaceID,
		OperatorID:      op,
		Method:          models.CaptureMethod(req.Method),
		PhotoURL:        req.PhotoURL,
		PlateConfidence: req.PlateConfidence,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(v))
}

// recordExit answers 422 with the recorded transaction when the documents differ.
func (a *ParkingAPI) recordExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.RecordExit(r.Context(), parking.ExitCommand{
		TransactionID:   req.TransactionID,
		Plate:           req.Plate,
		DocumentTypeID:  req.DocumentTypeID,
		DocumentNumber:  req.DocumentNumber,
		OperatorID:      op,
		Method:          models.CaptureMethod(req.Method),
		PhotoURL:        req.PhotoURL,
		PlateConfidence: req.PlateConfidence,
		Notes:           req.Notes,
	})
	if errors.Is(err, parking.ErrDocumentMismatch) && v != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:       err.Error(),
			Code:        "DOCUMENT_MISMATCH",
			Transaction: toTransactionDTO(v),
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(v))
}

func (a *ParkingAPI) processPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.ProcessPayment(r.Context(), parking.PaymentCommand{
		TransactionID:   id,
		PaymentTypeID:   req.PaymentTypeID,
		AmountPaid:      req.AmountPaid,
		OperatorID:      op,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
		SendReceipt:     req.SendReceipt,
	})
	respond(w, r, v, err)
}

func (a *ParkingAPI) applyDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req discountRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.ApplyDiscount(r.Context(), id, req.Discount, op, req.Reason)
	respond(w, r, v, err)
}

func (a *ParkingAPI) refundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.RefundPayment(r.Context(), parking.RefundCommand{
		TransactionID: id,
		Amount:        req.Amount,
		Reason:        req.Reason,
		OperatorID:    op,
	})
	respond(w, r, v, err)
}

func (a *ParkingAPI) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.CancelTransaction(r.Context(), id, op, req.Reason)
	respond(w, r, v, err)
}

func (a *ParkingAPI) resolveMismatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.ResolveDocumentMismatch(r.Context(), id, op, req.Notes)
	respond(w, r, v, err)
}

func (a *ParkingAPI) applyReceiptStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req receiptStatusRequest
	if !decode(w, r, &req) {
		return
	}
	err := a.svc.ApplyReceiptStatus(r.Context(), messages.ReceiptStatusUpdate{
		TransactionID: id,
		Channel:       req.Channel,
		Status:        req.Status,
		UpdatedAt:     time.Now().UTC(),
		Error:         req.Error,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ParkingAPI) changeSpaceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req spaceStatusRequest
	if !decode(w, r, &req) {
		return
	}
	op, ok := operatorID(w, r)
	if !ok {
		return
	}
	sp, err := a.svc.ChangeSpaceStatus(r.Context(), id, models.SpaceAction(strings.ToUpper(req.Action)), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpaceDTO(sp))
}

func (a *ParkingAPI) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.GetByID(r.Context(), id)
	respond(w, r, v, err)
}

func (a *ParkingAPI) getActiveByPlate(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.GetActiveByPlate(r.Context(), chi.URLParam(r, "plate"))
	respond(w, r, v, err)
}

func (a *ParkingAPI) listActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := pageParams(w, q)
	if !ok {
		return
	}
	zoneID, ok := optionalUint(w, q, "zone_id")
	if !ok {
		return
	}
	res, err := a.svc.ListActive(r.Context(), parking.ActiveFilter{ZoneID: zoneID, Plate: q.Get("plate")}, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(res))
}

func (a *ParkingAPI) listOverdue(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r.URL.Query())
	if !ok {
		return
	}
	res, err := a.svc.ListOverdue(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(res))
}

func (a *ParkingAPI) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := pageParams(w, q)
	if !ok {
		return
	}
	f := parking.HistoryFilter{Plate: q.Get("plate")}
	if f.ZoneID, ok = optionalUint(w, q, "zone_id"); !ok {
		return
	}
	if f.From, ok = optionalTime(w, q, "from"); !ok {
		return
	}
	if f.To, ok = optionalTime(w, q, "to"); !ok {
		return
	}
	if s := q.Get("status"); s != "" {
		st := models.TransactionStatus(strings.ToUpper(s))
		f.Status = &st
	}
	if s := q.Get("payment_status"); s != "" {
		ps := models.PaymentStatus(strings.ToUpper(s))
		f.PaymentStatus = &ps
	}
	if s := q.Get("mismatch"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			badRequest(w, "mismatch must be a boolean")
			return
		}
		f.Mismatch = &b
	}
	res, err := a.svc.ListHistory(r.Context(), f, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(res))
}

func respond(w http.ResponseWriter, r *http.Request, v *parking.TransactionView, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(v))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

// operatorID reads OperatorHeader. A missing header yields 0 and is left to the coordinator.
func operatorID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	h := r.Header.Get(OperatorHeader)
	if h == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(h, 10, 64)
	if err != nil {
		badRequest(w, "invalid "+OperatorHeader+" header")
		return 0, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, q map[string][]string) (models.Page, bool) {
	var p models.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Number}, {"size", &p.Size}} {
		vals := q[f.name]
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		n, err := strconv.Atoi(vals[0])
		if err != nil || n < 0 {
			badRequest(w, f.name+" must be a non-negative integer")
			return models.Page{}, false
		}
		*f.dst = n
	}
	return p.Normalize(), true
}

func optionalUint(w http.ResponseWriter, q map[string][]string, name string) (*uint64, bool) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return nil, true
	}
	n, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		badRequest(w, name+" must be a positive integer")
		return nil, false
	}
	return &n, true
}

func optionalTime(w http.ResponseWriter, q map[string][]string, name string) (*time.Time, bool) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, vals[0])
	if err != nil {
		badRequest(w, name+" must be an RFC3339 timestamp")
		return nil, false
	}
	t = t.UTC()
	return &t, true
}
