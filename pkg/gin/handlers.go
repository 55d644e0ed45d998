// Package gin exposes the locker rental HTTP interface on a gin router.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satslock/lockerd"
)

// SignatureHeader carries the session proof on usage-payment requests.
// The sig query parameter is accepted as a fallback.
const SignatureHeader = "X-Session-Signature"

// Register mounts the locker routes on the router
func Register(router gin.IRouter, service *lockerd.ReconciliationService) {
	router.GET("/lockers", listLockers(service))
	router.GET("/lockers/:id", getLocker(service))
	router.GET("/use_locker/:id", useLocker(service))
	router.GET("/pay_for_usage/:id", payForUsage(service))
	router.GET("/payment_receipt/:hash", paymentReceipt(service))
}

func listLockers(service *lockerd.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, service.List())
	}
}

func getLocker(service *lockerd.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := service.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, info)
	}
}

func useLocker(service *lockerd.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		reservation, err := service.Reserve(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, reservation)
	}
}

func payForUsage(service *lockerd.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			signature = c.Query("sig")
		}

		invoice, err := service.PayForUsage(c.Request.Context(), c.Param("id"), signature)
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, gin.H{"invoice": invoice})
	}
}

func paymentReceipt(service *lockerd.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		receipt, err := service.PaymentReceipt(c.Request.Context(), c.Param("hash"))
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, receipt)
	}
}

func respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, lockerd.Envelope{Data: data})
}

func respondError(c *gin.Context, err error) {
	message := err.Error()
	c.AbortWithStatusJSON(StatusForError(err), lockerd.Envelope{Error: &message})
}

// StatusForError maps domain error codes to HTTP statuses
func StatusForError(err error) int {
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
