package raffles

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rifa-backend/api/responses"
	"github.com/angelmondragon/rifa-backend/api/validators"
	internalraffles "github.com/angelmondragon/rifa-backend/internal/raffles"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
)

type createRaffleRequest struct {
	Name         string          `json:"name" validate:"required,max=140"`
	TotalTickets int             `json:"total_tickets" validate:"required,min=1,max=100000"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	Currency     string          `json:"currency" validate:"omitempty,len=3,uppercase"`
	EndsAt       *time.Time      `json:"ends_at"`
}

// Snapshot returns the public inventory view of a raffle.
func Snapshot(svc internalraffles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}

		raffleID, err := validators.ParseUUIDParam(r, "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := svc.Snapshot(r.Context(), raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// AdminCreate opens a new raffle.
func AdminCreate(svc internalraffles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "raffle service unavailable"))
			return
		}

		var req createRaffleRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var currency enums.Currency
		if code := strings.TrimSpace(req.Currency); code != "" {
			parsed, err := enums.ParseCurrency(code)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency").
					WithDetails(map[string]string{"currency": "is invalid"}))
				return
			}
			currency = parsed
		}

		raffle, err := svc.Create(r.Context(), internalraffles.CreateRaffleInput{
			Name:         req.Name,
			TotalTickets: req.TotalTickets,
			TicketPrice:  req.TicketPrice,
			Currency:     currency,
			EndsAt:       req.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithRaffleID(r.Context(), raffle.ID.String()), "raffle created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalraffles.NewSnapshot(raffle, time.Now()))
	}
}
