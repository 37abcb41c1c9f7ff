package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/jwt-gate/rbac"
	"github.com/upb/jwt-gate/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testKey = []byte("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----\n")

// MockKeySource is a mock implementation of KeySource
type MockKeySource struct {
	mock.Mock
}

func (m *MockKeySource) GetKey(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, raw string, pemKey []byte) (token.Claims, error) {
	args := m.Called(ctx, raw, pemKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(token.Claims), args.Error(1)
}

func newMockGate(t *testing.T, debug bool, logger *zap.Logger) (*Gate, *MockKeySource, *MockTokenVerifier) {
	keys := new(MockKeySource)
	verifier := new(MockTokenVerifier)
	t.Cleanup(func() {
		keys.AssertExpectations(t)
		verifier.AssertExpectations(t)
	})
	return NewGate(keys, verifier, GateOptions{Debug: debug}, logger), keys, verifier
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Token: abc", "abc"},
		{"Bearer ", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerToken(tt.header))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(nil))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(ErrUnauthorized))
	assert.Equal(t, http.StatusForbidden, StatusCode(ErrForbidden))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(errors.Join(ErrUnauthorized, token.ErrTokenExpired)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("other")))
}

func TestAuthorize(t *testing.T) {
	claims := token.Claims{"sub": "user-1", "permissions": []interface{}{"r1"}}

	t.Run("verified token without spec", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(claims, nil)

		got, err := gate.Authorize(context.Background(), "tok", nil)
		require.NoError(t, err)
		assert.Equal(t, claims, got)
	})

	t.Run("key failure is unauthorized", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(nil, errors.New("issuer down"))

		_, err := gate.Authorize(context.Background(), "tok", nil)
		assert.ErrorIs(t, err, ErrUnauthorized)
		verifier.AssertNotCalled(t, "Verify")
	})

	t.Run("verification failure keeps the cause", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(nil, token.ErrInvalidAudience)

		_, err := gate.Authorize(context.Background(), "tok", nil)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, err, token.ErrInvalidAudience)
	})

	t.Run("failing spec is forbidden", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(claims, nil)

		_, err := gate.Authorize(context.Background(), "tok", rbac.Spec{"permissions": rbac.RoleList("r1", "r2")})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestWrap(t *testing.T) {
	claims := token.Claims{"sub": "user-1", "permissions": []interface{}{"r1"}}
	longForm := rbac.Spec{"permissions": rbac.RuleObject(rbac.AnyOf("r1"), rbac.AnyOf("bad"))}

	newInvocation := func(header string) *Invocation {
		return &Invocation{
			Req: &Request{Headers: map[string]string{"authorization": header}},
			Res: &Response{},
		}
	}

	t.Run("passes claims and arguments through to the handler", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(claims, nil)

		var gotArgs []interface{}
		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			assert.Equal(t, claims, inv.User)
			gotArgs = args
			return "result", nil
		}, nil)

		inv := newInvocation("Bearer tok")
		got, err := wrapped(context.Background(), inv, "a", 2)
		require.NoError(t, err)
		assert.Equal(t, "result", got)
		assert.Equal(t, []interface{}{"a", 2}, gotArgs)
		assert.NotEmpty(t, inv.ID)
	})

	t.Run("handler error is returned unchanged", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(claims, nil)
		boom := errors.New("boom")

		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			return nil, boom
		}, nil)

		_, err := wrapped(context.Background(), newInvocation("Bearer tok"))
		assert.Equal(t, boom, err)
	})

	t.Run("verification failure sets 401", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(nil, token.ErrInvalidToken)

		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		}, nil)

		inv := newInvocation("Bearer tok")
		got, err := wrapped(context.Background(), inv)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusUnauthorized, inv.Res.Status)
		assert.Nil(t, inv.User)
	})

	t.Run("failing spec sets 403", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).
			Return(token.Claims{"permissions": []interface{}{"r1", "bad"}}, nil)

		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		}, longForm)

		inv := newInvocation("Bearer tok")
		_, err := wrapped(context.Background(), inv)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, inv.Res.Status)
		assert.Nil(t, inv.User)
	})

	t.Run("binding data header is the fallback", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "bound", testKey).Return(claims, nil)

		called := false
		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			called = true
			return nil, nil
		}, nil)

		inv := &Invocation{
			Req:         &Request{Headers: map[string]string{}},
			BindingData: &BindingData{Headers: map[string]string{"authorization": "Bearer bound"}},
		}
		_, err := wrapped(context.Background(), inv)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("header names are not case folded", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "", testKey).Return(nil, token.ErrMissingToken)

		wrapped := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		}, nil)

		inv := &Invocation{Req: &Request{Headers: map[string]string{"Authorization": "Bearer tok"}}}
		_, err := wrapped(context.Background(), inv)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, inv.Res.Status)
	})

	t.Run("debug messages go to the invocation log", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, true, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(nil, token.ErrTokenExpired)

		var messages []string
		inv := newInvocation("Bearer tok")
		inv.Log = func(msg string) { messages = append(messages, msg) }

		_, err := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			return nil, nil
		}, nil)(context.Background(), inv)
		require.NoError(t, err)
		assert.Equal(t, []string{"Verifying JWT...", token.ErrTokenExpired.Error()}, messages)
		assert.Nil(t, inv.Res.Body)
	})

	t.Run("no debug messages when debug is off", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(nil, token.ErrTokenExpired)

		inv := newInvocation("Bearer tok")
		inv.Log = func(msg string) { t.Fatalf("unexpected log: %s", msg) }

		_, err := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			return nil, nil
		}, nil)(context.Background(), inv)
		require.NoError(t, err)
	})

	t.Run("forbidden logs nothing", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, true, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "tok", testKey).Return(claims, nil)

		var messages []string
		inv := newInvocation("Bearer tok")
		inv.Log = func(msg string) { messages = append(messages, msg) }

		_, err := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			return nil, nil
		}, rbac.Spec{"permissions": rbac.RoleList("r2")})(context.Background(), inv)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, inv.Res.Status)
		assert.Equal(t, []string{"Verifying JWT..."}, messages)
	})

	t.Run("nil invocation", func(t *testing.T) {
		gate, _, _ := newMockGate(t, false, nil)
		_, err := gate.Wrap(func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
			return nil, nil
		}, nil)(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNilInvocation)
	})
}

func TestRequire(t *testing.T) {
	claims := token.Claims{"sub": "user-1", "permissions": []interface{}{"r1"}}

	t.Run("valid token reaches handler with claims in context", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "valid-token", testKey).Return(claims, nil)

		handler := gate.Require(rbac.Spec{"permissions": rbac.RoleList("r1")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, claims, GetClaimsFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid token returns 401 without the cause", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		gate, keys, verifier := newMockGate(t, true, zap.New(core))
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "invalid-token", testKey).Return(nil, token.ErrInvalidIssuer)

		handler := gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotContains(t, w.Body.String(), token.ErrInvalidIssuer.Error())
		assert.Equal(t, 1, logs.FilterMessage(token.ErrInvalidIssuer.Error()).Len())
	})

	t.Run("failing spec returns 403", func(t *testing.T) {
		gate, keys, verifier := newMockGate(t, false, nil)
		keys.On("GetKey", mock.Anything).Return(testKey, nil)
		verifier.On("Verify", mock.Anything, "valid-token", testKey).Return(claims, nil)

		handler := gate.Require(rbac.Spec{"permissions": rbac.RoleList("admin")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
