package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"runclub/core"
	"runclub/crypto"
	"runclub/gateway/middleware"
	"runclub/indexer"
	"runclub/native/runclub"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// EventIndex is the read side of the event indexer.
type EventIndex interface {
	ClubEvents(ctx context.Context, clubID uint64, after uint64, limit int) ([]indexer.Event, error)
	AddressEvents(ctx context.Context, addr string, limit int) ([]indexer.Event, error)
}

type clubView struct {
	ID                uint64   `json:"id"`
	Name              string   `json:"name"`
	Organizer         string   `json:"organizer"`
	Members           []string `json:"members"`
	USDCDeposited     string   `json:"usdcDeposited"`
	USDCPerKm         string   `json:"usdcPerKm"`
	WithdrawalRule    string   `json:"withdrawalRule"`
	MonthEndTimestamp uint64   `json:"monthEndTimestamp"`
	IsActive          bool     `json:"isActive"`
}

type createClubRequest struct {
	Name           string `json:"name"`
	USDCPerKm      string `json:"usdcPerKm"`
	WithdrawalRule string `json:"withdrawalRule"`
	DurationDays   uint32 `json:"durationDays"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type addKmRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type redeemRequest struct {
	Destination string `json:"destination,omitempty"`
}

type clubRoutes struct {
	rt      *core.Runtime
	events  EventIndex
	logger  *slog.Logger
	timeout time.Duration
}

func (cr *clubRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := cr.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (cr *clubRoutes) listClubs(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var out []clubView
	err := cr.rt.View(ctx, func(call *core.Call) error {
		clubs, err := call.Clubs.Clubs()
		if err != nil {
			return err
		}
		out = make([]clubView, 0, len(clubs))
		for _, club := range clubs {
			if activeOnly && !club.IsActive {
				continue
			}
			out = append(out, renderClub(club))
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubs": out})
}

func (cr *clubRoutes) getClub(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var view clubView
	var periodValid bool
	err = cr.rt.View(ctx, func(call *core.Call) error {
		club, err := call.Clubs.Club(id)
		if err != nil {
			return err
		}
		view = renderClub(club)
		periodValid, err = call.Clubs.IsClubPeriodValid(id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"club": view, "periodValid": periodValid})
}

func (cr *clubRoutes) listMembers(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var members [][20]byte
	err = cr.rt.View(ctx, func(call *core.Call) error {
		members, err = call.Clubs.Members(id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubId": id, "members": renderAddresses(members)})
}

func (cr *clubRoutes) createClub(w http.ResponseWriter, r *http.Request) {
	organizer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	var req createClubRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	rate, err := parseAmount(req.USDCPerKm)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rule, err := runclub.ParseWithdrawalRule(req.WithdrawalRule)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var id uint64
	err = cr.rt.Execute(ctx, core.OpCreateClub, core.NewSignerSet(organizer), func(call *core.Call) error {
		id, err = call.Clubs.CreateClub(organizer, req.Name, rate, rule, req.DurationDays)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"clubId": id})
}

func (cr *clubRoutes) activateClub(w http.ResponseWriter, r *http.Request) {
	cr.organizerCall(w, r, core.OpActivate, func(call *core.Call, id uint64, organizer [20]byte) error {
		return call.Clubs.Activate(id, organizer)
	})
}

func (cr *clubRoutes) removeClub(w http.ResponseWriter, r *http.Request) {
	cr.organizerCall(w, r, core.OpRemoveClub, func(call *core.Call, id uint64, organizer [20]byte) error {
		return call.Clubs.RemoveClub(id, organizer)
	})
}

func (cr *clubRoutes) removeMember(w http.ResponseWriter, r *http.Request) {
	member, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cr.organizerCall(w, r, core.OpRemoveMember, func(call *core.Call, id uint64, organizer [20]byte) error {
		return call.Clubs.RemoveMember(id, organizer, member)
	})
}

// organizerCall runs fn with the signer acting as the club organizer.
func (cr *clubRoutes) organizerCall(w http.ResponseWriter, r *http.Request, op core.Op, fn func(*core.Call, uint64, [20]byte) error) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	organizer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	err = cr.rt.Execute(ctx, op, core.NewSignerSet(organizer), func(call *core.Call) error {
		return fn(call, id, organizer)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubId": id, "status": "ok"})
}

func (cr *clubRoutes) depositFunds(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	organizer, ok := middleware.SignerFromContext(r.Context())
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
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	if err := cr.rt.FundClub(ctx, core.NewSignerSet(organizer), id, organizer, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubId": id, "deposited": amount.String()})
}

func (cr *clubRoutes) addMember(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	member, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	err = cr.rt.Execute(ctx, core.OpAddMember, core.NewSignerSet(member), func(call *core.Call) error {
		return call.Clubs.AddMember(id, member)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"clubId": id, "member": renderAddress(member)})
}

func (cr *clubRoutes) addKm(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req addKmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := crypto.ParseAddress(req.User)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var balance *big.Int
	err = cr.rt.Execute(ctx, core.OpAddKm, nil, func(call *core.Call) error {
		if err := call.Clubs.AddKmTokens(id, user, amount); err != nil {
			return err
		}
		balance, err = call.Clubs.KmBalance(id, user)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	cr.logger.Info("km accrued",
		slog.Uint64("club_id", id),
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
		slog.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]any{
		"clubId":  id,
		"user":    renderAddress(user),
		"balance": balance.String(),
	})
}

func (cr *clubRoutes) kmBalance(w http.ResponseWriter, r *http.Request) {
	id, user, err := clubAndAddress(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var balance *big.Int
	err = cr.rt.View(ctx, func(call *core.Call) error {
		if _, err := call.Clubs.Club(id); err != nil {
			return err
		}
		balance, err = call.Clubs.KmBalance(id, user)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clubId":  id,
		"user":    renderAddress(user),
		"balance": balance.String(),
	})
}

func (cr *clubRoutes) totalKm(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var total *big.Int
	err = cr.rt.View(ctx, func(call *core.Call) error {
		total, err = call.Clubs.TotalKmBalance(id)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubId": id, "total": total.String()})
}

func (cr *clubRoutes) reward(w http.ResponseWriter, r *http.Request) {
	id, user, err := clubAndAddress(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var reward *big.Int
	err = cr.rt.View(ctx, func(call *core.Call) error {
		reward, err = call.Clubs.CalculateReward(id, user)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clubId": id,
		"user":   renderAddress(user),
		"reward": reward.String(),
	})
}

func (cr *clubRoutes) redemptionInfo(w http.ResponseWriter, r *http.Request) {
	id, user, err := clubAndAddress(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var info *runclub.RedemptionInfo
	err = cr.rt.View(ctx, func(call *core.Call) error {
		info, err = call.Clubs.RedemptionInfo(id, user)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clubId":          id,
		"user":            renderAddress(user),
		"kmBalance":       info.KmBalance.String(),
		"projectedReward": info.ProjectedReward.String(),
		"periodEnded":     info.PeriodEnded,
	})
}

func (cr *clubRoutes) redeem(w http.ResponseWriter, r *http.Request) {
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeEngineError(w, errMissingSigner)
		return
	}
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	destination := user
	if strings.TrimSpace(req.Destination) != "" {
		destination, err = crypto.ParseAddress(req.Destination)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	reward, err := cr.rt.RedeemAndPay(ctx, core.NewSignerSet(user), id, user, destination)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clubId":      id,
		"user":        renderAddress(user),
		"destination": renderAddress(destination),
		"reward":      reward.String(),
	})
}

func (cr *clubRoutes) memberClubs(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	var ids []uint64
	err = cr.rt.View(ctx, func(call *core.Call) error {
		ids, err = call.Clubs.MemberClubs(addr)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": renderAddress(addr), "clubIds": ids})
}

func (cr *clubRoutes) clubEvents(w http.ResponseWriter, r *http.Request) {
	if cr.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("event index disabled"))
		return
	}
	id, err := clubIDParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	after, limit, err := pageParams(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	evts, err := cr.events.ClubEvents(ctx, id, after, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubId": id, "events": evts})
}

func (cr *clubRoutes) memberEvents(w http.ResponseWriter, r *http.Request) {
	if cr.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("event index disabled"))
		return
	}
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	_, limit, err := pageParams(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := cr.context(r.Context())
	defer cancel()

	hexAddr := crypto.NewAddress(crypto.RunPrefix, addr).Hex()
	evts, err := cr.events.AddressEvents(ctx, hexAddr, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": renderAddress(addr), "events": evts})
}

func renderClub(club *runclub.Club) clubView {
	return clubView{
		ID:                club.ID,
		Name:              club.Name,
		Organizer:         renderAddress(club.Organizer),
		Members:           renderAddresses(club.Members),
		USDCDeposited:     amountString(club.USDCDeposited),
		USDCPerKm:         amountString(club.USDCPerKm),
		WithdrawalRule:    club.WithdrawalRule.String(),
		MonthEndTimestamp: club.MonthEndTimestamp,
		IsActive:          club.IsActive,
	}
}

func renderAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.RunPrefix, addr).String()
}

func renderAddresses(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, renderAddress(addr))
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func clubIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid club id %q", raw)
	}
	return id, nil
}

func clubAndAddress(r *http.Request) (uint64, [20]byte, error) {
	id, err := clubIDParam(r)
	if err != nil {
		return 0, [20]byte{}, err
	}
	addr, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		return 0, [20]byte{}, err
	}
	return id, addr, nil
}

func pageParams(r *http.Request) (uint64, int, error) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid after %q", raw)
		}
		after = v
	}
	var limit int
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = v
	}
	return after, limit, nil
}

// parseAmount accepts a base-10 integer in the asset's smallest unit.
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: amount is required", runclub.ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", runclub.ErrInvalidAmount, raw)
	}
	return v, nil
}

// decodeJSON reads a bounded JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) > requestBodyLimit {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
