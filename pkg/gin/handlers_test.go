package gin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satslock/lockerd"
)

type stubWallet struct {
	mu       sync.Mutex
	statuses map[string]lockerd.PaymentStatus
	created  int
}

func newStubWallet() *stubWallet {
	return &stubWallet{statuses: make(map[string]lockerd.PaymentStatus)}
}

func (w *stubWallet) CreateInvoice(_ context.Context, amountSats int64, _ string) (*lockerd.Invoice, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.created++
	hash := fmt.Sprintf("hash-%d", w.created)
	w.statuses[hash] = lockerd.PaymentPending
	return &lockerd.Invoice{
		PaymentHash:    hash,
		EncodedInvoice: "lnstub" + hash,
		AmountSats:     amountSats,
		Status:         lockerd.InvoicePending,
	}, nil
}

func (w *stubWallet) GetPaymentStatus(_ context.Context, paymentHash string) (lockerd.PaymentStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	status, ok := w.statuses[paymentHash]
	if !ok {
		return lockerd.PaymentUnknown, nil
	}
	return status, nil
}

func (w *stubWallet) settle(paymentHash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses[paymentHash] = lockerd.PaymentSettled
}

func newTestRouter(t *testing.T) (*gin.Engine, *stubWallet) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := lockerd.NewLockerRegistry([]string{"A1", "A2"})
	require.NoError(t, err)
	authority, err := lockerd.NewSessionAuthority([]byte("handler-test-key"))
	require.NoError(t, err)

	wallet := newStubWallet()
	service := lockerd.NewReconciliationService(registry, authority, wallet,
		lockerd.Tariff{UnitSeconds: 60, RateSats: 10})

	router := gin.New()
	Register(router, service)
	return router, wallet
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) (json.RawMessage, *string) {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope.Data, envelope.Error
}

func TestListAndGetLockers(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(router, "GET", "/lockers", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	data, errMsg := decodeEnvelope(t, recorder)
	assert.Nil(t, errMsg)

	var infos []lockerd.LockerInfo
	require.NoError(t, json.Unmarshal(data, &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, lockerd.StateAvailable, infos[0].State)

	recorder = doRequest(router, "GET", "/lockers/A1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(router, "GET", "/lockers/nope", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	_, errMsg = decodeEnvelope(t, recorder)
	require.NotNil(t, errMsg)
	assert.Contains(t, *errMsg, "not_found")
}

func TestFullRentalFlow(t *testing.T) {
	router, wallet := newTestRouter(t)

	// Reserve
	recorder := doRequest(router, "GET", "/use_locker/A1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	data, _ := decodeEnvelope(t, recorder)
	var reservation lockerd.Reservation
	require.NoError(t, json.Unmarshal(data, &reservation))
	assert.Equal(t, "A1", reservation.LockerID)
	require.NotEmpty(t, reservation.Signature)

	// Second reservation conflicts
	recorder = doRequest(router, "GET", "/use_locker/A1", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Invoice with the session proof
	recorder = doRequest(router, "GET", "/pay_for_usage/A1",
		map[string]string{SignatureHeader: reservation.Signature})
	require.Equal(t, http.StatusOK, recorder.Code)

	data, _ = decodeEnvelope(t, recorder)
	var payload struct {
		Invoice lockerd.Invoice `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	require.NotEmpty(t, payload.Invoice.PaymentHash)
	assert.Equal(t, int64(10), payload.Invoice.AmountSats, "minimum one billed unit")

	// Pending receipt
	recorder = doRequest(router, "GET", "/payment_receipt/"+payload.Invoice.PaymentHash, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	data, _ = decodeEnvelope(t, recorder)
	var receipt lockerd.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.False(t, receipt.Settled)

	// Settled receipt releases the locker
	wallet.settle(payload.Invoice.PaymentHash)
	recorder = doRequest(router, "GET", "/payment_receipt/"+payload.Invoice.PaymentHash, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	data, _ = decodeEnvelope(t, recorder)
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.True(t, receipt.Settled)

	recorder = doRequest(router, "GET", "/lockers/A1", nil)
	data, _ = decodeEnvelope(t, recorder)
	var info lockerd.LockerInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, lockerd.StateAvailable, info.State)
}

func TestPayForUsageSignatureChecks(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(router, "GET", "/use_locker/A1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	data, _ := decodeEnvelope(t, recorder)
	var reservation lockerd.Reservation
	require.NoError(t, json.Unmarshal(data, &reservation))

	// Missing proof
	recorder = doRequest(router, "GET", "/pay_for_usage/A1", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Forged proof
	recorder = doRequest(router, "GET", "/pay_for_usage/A1",
		map[string]string{SignatureHeader: "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Paying for an available locker
	recorder = doRequest(router, "GET", "/pay_for_usage/A2",
		map[string]string{SignatureHeader: reservation.Signature})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Proof accepted via query parameter fallback
	recorder = doRequest(router, "GET", "/pay_for_usage/A1?sig="+reservation.Signature, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestPaymentReceiptErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(router, "GET", "/payment_receipt/unknown-hash", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	_, errMsg := decodeEnvelope(t, recorder)
	require.NotNil(t, errMsg)
}

func TestStatusForError(t *testing.T) {
	cases := map[string]int{
		lockerd.ErrCodeNotFound:          http.StatusNotFound,
		lockerd.ErrCodeConflict:          http.StatusConflict,
		lockerd.ErrCodeStaleSession:      http.StatusConflict,
		lockerd.ErrCodeInvalidSignature:  http.StatusUnauthorized,
		lockerd.ErrCodeWalletUnavailable: http.StatusBadGateway,
		lockerd.ErrCodeWalletError:       http.StatusBadGateway,
	}

	for code, want := range cases {
		assert.Equal(t, want, StatusForError(lockerd.NewError(code, "x")), code)
	}

	assert.Equal(t, http.StatusInternalServerError, StatusForError(assert.AnError))
}
