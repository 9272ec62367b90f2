package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fliptowin/internal/game"
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": disabledHealth(),
		"cache":    disabledHealth(),
		"game": fiber.Map{
			"status":            "running",
			"store":             s.store,
			"connected_clients": s.gameHub.GetClientCount(),
			"round_id":          s.game.Clock().CurrentRoundID(),
			"insecure_secret":   s.game.Oracle().Insecure(),
			"secret_commitment": s.game.Oracle().Commitment(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

func disabledHealth() map[string]string {
	return map[string]string{"status": "disabled"}
}

// Round status is public and identical for every caller within a second.
func (s *FiberServer) roundStatusHandler(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "public, max-age=1")
	return c.JSON(game.RoundStatusResponse{Success: true, RoundSnapshot: s.game.RoundStatus()})
}

func (s *FiberServer) playHandler(c *fiber.Ctx) error {
	var req game.PlaceBetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	resp, err := s.game.PlaceBet(c.UserContext(), req)
	if err != nil {
		return s.gameError(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	roundID, err := strconv.ParseInt(c.Params("roundId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid round id",
		})
	}

	reveal, err := s.game.RevealOutcome(roundID)
	if err != nil {
		return s.gameError(c, err)
	}
	return c.JSON(reveal)
}

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "User ID is required",
		})
	}

	resp, err := s.game.Balances(c.UserContext(), userID)
	if err != nil {
		return s.gameError(c, err)
	}
	return c.JSON(resp)
}

// setUserBalanceHandler seeds an account. It is disabled unless an admin key
// is configured.
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	if s.http.AdminAPIKey == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "Admin API is disabled",
		})
	}
	key := c.Get("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.http.AdminAPIKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid admin key",
		})
	}

	userID := c.Params("userId")
	var body struct {
		WalletBalance  decimal.Decimal `json:"walletBalance"`
		CurrentBalance decimal.Decimal `json:"currentBalance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	b := game.Balances{Wallet: body.WalletBalance, Current: body.CurrentBalance}
	if err := s.game.SetBalances(c.UserContext(), userID, b); err != nil {
		return s.gameError(c, err)
	}

	return c.JSON(game.BalanceResponse{
		UserID:         userID,
		WalletBalance:  b.Wallet,
		CurrentBalance: b.Current,
		TotalBalance:   b.Total(),
	})
}

// gameError maps domain errors to HTTP statuses. Invariant violations and
// storage failures never leak detail to the caller.
func (s *FiberServer) gameError(c *fiber.Ctx, err error) error {
	status, message := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"success":   false,
		"error":     message,
		"retryable": game.IsRetryable(err),
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrInvalidBet), errors.Is(err, game.ErrInvalidRound):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, game.ErrInsufficientFunds):
		return fiber.StatusBadRequest, "Insufficient balance"
	case errors.Is(err, game.ErrAccountNotFound):
		return fiber.StatusNotFound, "User not found"
	case errors.Is(err, game.ErrBettingLocked):
		return fiber.StatusConflict, "Betting is locked for this round"
	case errors.Is(err, game.ErrRoundNotFinished):
		return fiber.StatusTooEarly, "Round has not finished"
	case errors.Is(err, game.ErrWriteConflict), errors.Is(err, game.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, "Service temporarily unavailable, retry"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

const wsBetTimeout = 5 * time.Second

type wsClientMessage struct {
	Type   string          `json:"type"`
	Face   string          `json:"face"`
	Amount decimal.Decimal `json:"amount"`
}

// gameWebSocketHandler streams round events and accepts bets from the
// connected user.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")
	log := s.log.With(zap.String("user_id", userID))
	log.Debug("websocket connected")

	client := s.gameHub.RegisterClient(conn, userID)
	defer s.gameHub.UnregisterClient(client)

	client.Send(game.WSMessage{Type: game.MessageInitial, Data: s.game.RoundStatus()}, log)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("websocket read ended", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg wsClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send(game.WSMessage{Type: game.MessageError, Data: fiber.Map{"error": "Invalid message"}}, log)
			continue
		}

		switch msg.Type {
		case game.MessagePlaceBet:
			ctx, cancel := context.WithTimeout(context.Background(), wsBetTimeout)
			resp, err := s.game.PlaceBet(ctx, game.PlaceBetRequest{UserID: userID, Face: msg.Face, Amount: msg.Amount})
			cancel()
			if err != nil {
				status, text := errorStatus(err)
				client.Send(game.WSMessage{Type: game.MessageError, Data: fiber.Map{
					"status":    status,
					"error":     text,
					"retryable": game.IsRetryable(err),
				}}, log)
				continue
			}
			client.Send(game.WSMessage{Type: game.MessageBetResult, Data: resp}, log)

		case game.MessagePing:
			client.Send(game.WSMessage{Type: game.MessagePong}, log)
		}
	}
}
