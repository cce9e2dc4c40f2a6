package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"runclub/core"
	"runclub/crypto"
	"runclub/gateway/middleware"
)

type tokenRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenRoutes struct {
	*clubRoutes
}

func (tr *tokenRoutes) balance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()

	var balance *big.Int
	err = tr.rt.View(ctx, func(call *core.Call) error {
		balance, err = call.Tokens.Balance(addr)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": renderAddress(addr),
		"token":   tr.rt.Symbol(),
		"balance": balance.String(),
	})
}

func (tr *tokenRoutes) transfer(w http.ResponseWriter, r *http.Request) {
	tr.tokenCall(w, r, core.OpTransfer, func(call *core.Call, signer, to [20]byte, amount *big.Int) error {
		return call.Tokens.Transfer(signer, to, amount)
	})
}

func (tr *tokenRoutes) mint(w http.ResponseWriter, r *http.Request) {
	tr.tokenCall(w, r, core.OpMint, func(call *core.Call, signer, to [20]byte, amount *big.Int) error {
		return call.Tokens.Mint(signer, to, amount)
	})
}

func (tr *tokenRoutes) tokenCall(w http.ResponseWriter, r *http.Request, op core.Op, fn func(*core.Call, [20]byte, [20]byte, *big.Int) error) {
	signer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()

	err = tr.rt.Execute(ctx, op, core.NewSignerSet(signer), func(call *core.Call) error {
		return fn(call, signer, to, amount)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"to":     renderAddress(to),
		"token":  tr.rt.Symbol(),
		"amount": amount.String(),
	})
}

func (tr *tokenRoutes) burn(w http.ResponseWriter, r *http.Request) {
	signer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()

	err = tr.rt.Execute(ctx, core.OpBurn, core.NewSignerSet(signer), func(call *core.Call) error {
		return call.Tokens.Burn(signer, amount)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":   renderAddress(signer),
		"token":  tr.rt.Symbol(),
		"amount": amount.String(),
	})
}
