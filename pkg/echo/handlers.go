// Package echo exposes the locker rental HTTP interface on an echo router,
// mirroring the gin adapter for deployments standardized on echo.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/satslock/lockerd"
)

// SignatureHeader carries the session proof on usage-payment requests.
// The sig query parameter is accepted as a fallback.
const SignatureHeader = "X-Session-Signature"

// Register mounts the locker routes on the router
func Register(router *echo.Echo, service *lockerd.ReconciliationService) {
	router.GET("/lockers", func(c echo.Context) error {
		return respond(c, service.List())
	})

	router.GET("/lockers/:id", func(c echo.Context) error {
		info, err := service.Get(c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, info)
	})

	router.GET("/use_locker/:id", func(c echo.Context) error {
		reservation, err := service.Reserve(c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, reservation)
	})

	router.GET("/pay_for_usage/:id", func(c echo.Context) error {
		signature := c.Request().Header.Get(SignatureHeader)
		if signature == "" {
			signature = c.QueryParam("sig")
		}

		invoice, err := service.PayForUsage(c.Request().Context(), c.Param("id"), signature)
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, map[string]interface{}{"invoice": invoice})
	})

	router.GET("/payment_receipt/:hash", func(c echo.Context) error {
		receipt, err := service.PaymentReceipt(c.Request().Context(), c.Param("hash"))
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, receipt)
	})
}

func respond(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, lockerd.Envelope{Data: data})
}

func respondError(c echo.Context, err error) error {
	message := err.Error()
	return c.JSON(statusForError(err), lockerd.Envelope{Error: &message})
}

func statusForError(err error) int {
	switch lockerd.CodeOf(err) {
	case lockerd.ErrCodeNotFound:
		return http.StatusNotFound
	case lockerd.ErrCodeConflict, lockerd.ErrCodeStaleSession:
		return http.StatusConflict
	case lockerd.ErrCodeInvalidSignature:
		return http.StatusUnauthorized
	case lockerd.ErrCodeWalletUnavailable, lockerd.ErrCodeWalletError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
