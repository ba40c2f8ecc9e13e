package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace_wallet/internal/domain"
	"marketplace_wallet/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	mock.Mock
}

var _ PaymentService = (*mockEngine)(nil)

func (m *mockEngine) Transfer(ctx context.Context, senderUserID, receiverUserID uint, amount decimal.Decimal, idempotencyKey string) (*domain.Transaction, error) {
	args := m.Called(ctx, senderUserID, receiverUserID, amount, idempotencyKey)
	if txn, ok := args.Get(0).(*domain.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) AddMoney(ctx context.Context, userID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, amount)
	if w, ok := args.Get(0).(*domain.Wallet); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) Wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if w, ok := args.Get(0).(*domain.Wallet); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

func authAs(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	}
}

func newTestRouter(engine PaymentService, auth gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/wallet")
	if auth != nil {
		group.Use(auth)
	}
	group.GET("/balance", GetBalanceHandler(engine, nil))
	group.POST("/add-money", AddMoneyHandler(engine, nil))
	group.POST("/transfer", TransferHandler(engine, nil))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func amountEq(s string) any {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func TestTransferHandlerRequiresIdempotencyKey(t *testing.T) {
	engine := new(mockEngine)
	r := newTestRouter(engine, authAs(1))

	w := doJSON(t, r, http.MethodPost, "/wallet/transfer", `{"receiver_user_id":2,"amount":"30.00"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransferHandlerSuccess(t *testing.T) {
	engine := new(mockEngine)
	txn := &domain.Transaction{
		ID:               "7c0f3f4e-0000-0000-0000-000000000001",
		IdempotencyKey:   "k1",
		SenderWalletID:   1,
		ReceiverWalletID: 2,
		Amount:           decimal.RequireFromString("30.00"),
		Status:           domain.TxnStatusSuccess,
	}
	engine.On("Transfer", mock.Anything, uint(1), uint(2), amountEq("30.00"), "k1").Return(txn, nil)
	r := newTestRouter(engine, authAs(1))

	w := doJSON(t, r, http.MethodPost, "/wallet/transfer",
		`{"receiver_user_id":2,"amount":"30.00"}`,
		map[string]string{"Idempotency-Key": "k1"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, txn.ID, resp.Transaction.ID)
	assert.Equal(t, "k1", resp.Transaction.IdempotencyKey)
	engine.AssertExpectations(t)
}

func TestTransferHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"self transfer", domain.ErrSelfTransfer, http.StatusBadRequest},
		{"wallet not found", domain.ErrWalletNotFound, http.StatusNotFound},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusBadRequest},
		{"lock timeout", domain.ErrTransferTimeout, http.StatusServiceUnavailable},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := new(mockEngine)
			engine.On("Transfer", mock.Anything, uint(1), uint(2), mock.Anything, "k1").Return(nil, tc.err)
			r := newTestRouter(engine, authAs(1))

			w := doJSON(t, r, http.MethodPost, "/wallet/transfer",
				`{"receiver_user_id":2,"amount":"-5.00"}`,
				map[string]string{"Idempotency-Key": "k1"})

			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestTransferHandlerUnauthorized(t *testing.T) {
	engine := new(mockEngine)
	r := newTestRouter(engine, nil)

	w := doJSON(t, r, http.MethodPost, "/wallet/transfer",
		`{"receiver_user_id":2,"amount":"30.00"}`,
		map[string]string{"Idempotency-Key": "k1"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAddMoneyHandler(t *testing.T) {
	engine := new(mockEngine)
	wallet := &domain.Wallet{ID: 1, UserID: 1, Balance: decimal.RequireFromString("35.00"), Status: domain.WalletStatusActive}
	engine.On("AddMoney", mock.Anything, uint(1), amountEq("25.00")).Return(wallet, nil)
	r := newTestRouter(engine, authAs(1))

	w := doJSON(t, r, http.MethodPost, "/wallet/add-money", `{"amount":"25.00"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet domain.Wallet `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Wallet.Balance.Equal(decimal.RequireFromString("35.00")))
	engine.AssertExpectations(t)
}

func TestAddMoneyHandlerRejectsBadBody(t *testing.T) {
	engine := new(mockEngine)
	r := newTestRouter(engine, authAs(1))

	w := doJSON(t, r, http.MethodPost, "/wallet/add-money", `{}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertNotCalled(t, "AddMoney", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetBalanceHandler(t *testing.T) {
	engine := new(mockEngine)
	wallet := &domain.Wallet{ID: 1, UserID: 1, Balance: decimal.RequireFromString("70.00"), Status: domain.WalletStatusActive}
	engine.On("Wallet", mock.Anything, uint(1)).Return(wallet, nil)
	r := newTestRouter(engine, authAs(1))

	w := doJSON(t, r, http.MethodGet, "/wallet/balance", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet domain.Wallet `json:"wallet"`
		Cached bool          `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Wallet.Balance.Equal(decimal.RequireFromString("70.00")))
	assert.False(t, resp.Cached)
	engine.AssertExpectations(t)
}
