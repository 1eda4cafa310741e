package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"pixcashier/crypto"
	"pixcashier/native/cashier"
	nativecommon "pixcashier/native/common"
	"pixcashier/state"
)

type cashInParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
	TxID    string `json:"txId"`
}

type requestCashOutParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	TxID    string `json:"txId"`
}

type settleParams struct {
	Caller string `json:"caller"`
	TxID   string `json:"txId"`
}

type settleBatchParams struct {
	Caller string   `json:"caller"`
	TxIDs  []string `json:"txIds"`
}

type txIDParams struct {
	TxID string `json:"txId"`
}

type txIDBatchParams struct {
	TxIDs []string `json:"txIds"`
}

type accountParams struct {
	Account string `json:"account"`
}

type pendingPageParams struct {
	Index uint64 `json:"index"`
	Limit uint64 `json:"limit"`
}

type cashOutJSON struct {
	TxID    string `json:"txId"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
}

func (s *Server) handleCashIn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params cashInParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txID, err := parseTxID(params.TxID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = s.cashier.CashIn(caller, account, amount, txID)
	s.mu.Unlock()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"txId": formatTxID(txID)})
}

func (s *Server) handleRequestCashOut(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params requestCashOutParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txID, err := parseTxID(params.TxID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	record, err := s.cashier.RequestCashOut(account, amount, txID)
	s.mu.Unlock()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatCashOutJSON(record))
}

func (s *Server) handleConfirmCashOut(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleSettleOne(w, req, s.cashier.ConfirmCashOut)
}

func (s *Server) handleReverseCashOut(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleSettleOne(w, req, s.cashier.ReverseCashOut)
}

func (s *Server) handleConfirmCashOuts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleSettleBatch(w, req, s.cashier.ConfirmCashOuts)
}

func (s *Server) handleReverseCashOuts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleSettleBatch(w, req, s.cashier.ReverseCashOuts)
}

func (s *Server) handleSettleOne(w http.ResponseWriter, req *RPCRequest, fn func([20]byte, [32]byte) error) {
	var params settleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txID, err := parseTxID(params.TxID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = fn(caller, txID)
	s.mu.Unlock()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"txId": formatTxID(txID)})
}

func (s *Server) handleSettleBatch(w http.ResponseWriter, req *RPCRequest, fn func([20]byte, [][32]byte) error) {
	var params settleBatchParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txIDs, err := parseTxIDs(params.TxIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = fn(caller, txIDs)
	s.mu.Unlock()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"settled": len(txIDs)})
}

func (s *Server) handleGetCashOut(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params txIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txID, err := parseTxID(params.TxID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	record, found, err := s.cashier.GetCashOut(txID)
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	if !found {
		record = &cashier.CashOut{TxID: txID, Amount: big.NewInt(0), Status: cashier.CashOutNonexistent}
	}
	writeResult(w, req.ID, formatCashOutJSON(record))
}

func (s *Server) handleGetCashOuts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params txIDBatchParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txIDs, err := parseTxIDs(params.TxIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	records, err := s.cashier.GetCashOuts(txIDs)
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	out := make([]cashOutJSON, 0, len(records))
	for _, record := range records {
		out = append(out, formatCashOutJSON(record))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleCashOutBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.cashier.CashOutBalanceOf(account)
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"account": params.Account,
		"balance": balance.String(),
	})
}

func (s *Server) handlePendingCashOutCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.cashier.PendingCashOutCounter()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
}

func (s *Server) handleProcessedCashOutCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.cashier.ProcessedCashOutCounter()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
}

func (s *Server) handleGetPendingCashOutTxIDs(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pendingPageParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCashierInvalidParams, "invalid_params", err.Error())
		return
	}
	txIDs, err := s.cashier.GetPendingCashOutTxIDs(params.Index, params.Limit)
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	out := make([]string, 0, len(txIDs))
	for _, id := range txIDs {
		out = append(out, formatTxID(id))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleUnderlyingToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	symbol, err := s.cashier.UnderlyingToken()
	if err != nil {
		writeCashierError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"token": symbol})
}

func parseBech32Address(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Bytes(), nil
}

func parseTxIDs(ids []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(ids))
	for _, id := range ids {
		parsed, err := parseTxID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

func formatCashOutJSON(record *cashier.CashOut) cashOutJSON {
	amount := "0"
	if record.Amount != nil {
		amount = record.Amount.String()
	}
	return cashOutJSON{
		TxID:    formatTxID(record.TxID),
		Account: crypto.NewAddress(crypto.PixPrefix, record.Account).String(),
		Amount:  amount,
		Status:  record.Status.String(),
	}
}

func writeCashierError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeCashierInternal
	message := "internal_error"
	data := err.Error()
	if _, ok := cashier.IsInappropriateStatus(err); ok {
		writeError(w, http.StatusConflict, id, codeCashierConflict, "conflict", data)
		return
	}
	switch {
	case errors.Is(err, nativecommon.ErrUnauthorized) || errors.Is(err, nativecommon.ErrBlacklisted):
		status = http.StatusForbidden
		code = codeCashierForbidden
		message = "forbidden"
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusConflict
		code = codeCashierConflict
		message = "conflict"
	case errors.Is(err, cashier.ErrZeroAccount) ||
		errors.Is(err, cashier.ErrZeroAmount) ||
		errors.Is(err, cashier.ErrZeroTxID) ||
		errors.Is(err, cashier.ErrEmptyBatch):
		status = http.StatusBadRequest
		code = codeCashierInvalidParams
		message = "invalid_params"
	case errors.Is(err, state.ErrInsufficientBalance):
		status = http.StatusConflict
		code = codeCashierConflict
		message = "conflict"
	}
	writeError(w, status, id, code, message, data)
}
