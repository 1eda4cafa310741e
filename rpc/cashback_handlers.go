package rpc

import (
	"errors"
	"net/http"

	"pixcashier/native/cashback"
	nativecommon "pixcashier/native/common"
)

type setRateParams struct {
	Caller string `json:"caller"`
	Rate   uint64 `json:"rate"`
}

type sendCashbackParams struct {
	Caller          string `json:"caller"`
	Token           string `json:"token"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	AuthorizationID string `json:"authorizationId"`
}

type sendCashbackResult struct {
	Sent   bool   `json:"sent"`
	Amount string `json:"amount"`
}

func (s *Server) handleCashbackGetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	rate, err := s.cashback.Rate()
	if err != nil {
		writeCashbackError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"rate": rate})
}

func (s *Server) handleCashbackSetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setRateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = s.cashback.SetRate(caller, params.Rate)
	s.mu.Unlock()
	if err != nil {
		writeCashbackError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"rate": params.Rate})
}

func (s *Server) handleSendCashback(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sendCashbackParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseBech32Address(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	authID, err := parseTxID(params.AuthorizationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	sent, paid, err := s.cashback.SendCashback(caller, params.Token, recipient, amount, authID)
	s.mu.Unlock()
	if err != nil {
		writeCashbackError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sendCashbackResult{Sent: sent, Amount: paid.String()})
}

func writeCashbackError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeCashierInternal
	message := "internal_error"
	switch {
	case errors.Is(err, nativecommon.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeCashierForbidden
		message = "forbidden"
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusConflict
		code = codeCashierConflict
		message = "conflict"
	case errors.Is(err, cashback.ErrUnsupportedToken) ||
		errors.Is(err, cashback.ErrZeroRecipient) ||
		errors.Is(err, cashback.ErrInvalidAmount) ||
		errors.Is(err, cashback.ErrAmountOverflow):
		status = http.StatusBadRequest
		code = codeCashierInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, err.Error())
}
