package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"fairplay-backend/internal/config"
	"fairplay-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{
		client: client,
		ctx:    ctx,
	}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) StoreUserSession(session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, session.UserID, session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, key, data, expiry).Err()
}

func (s *RedisService) GetUserSession(userID int64, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, userID, sessionID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}

	session.LastAccessed = time.Now()
	updatedData, _ := json.Marshal(session)
	s.client.Set(s.ctx, key, updatedData, TTLUserSession)

	return &session, nil
}

func (s *RedisService) DeleteUserSession(userID int64, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, userID, sessionID)
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisService) SaveUser(user *models.User) error {
	key := fmt.Sprintf(KeyUserInfo, user.ID)

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %v", err)
	}

	return s.client.Set(s.ctx, key, data, TTLUserInfo).Err()
}

func (s *RedisService) GetUser(userID int64) (*models.User, error) {
	key := fmt.Sprintf(KeyUserInfo, userID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %v", userID, err)
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %v", err)
	}

	return &user, nil
}

func (s *RedisService) DeleteUser(userID int64) error {
	key := fmt.Sprintf(KeyUserInfo, userID)
	return s.client.Del(s.ctx, key).Err()
}

// UserIDForUsername maps a username onto a stable numeric ID, allocating
// one on first sight.
func (s *RedisService) UserIDForUsername(username string) (int64, error) {
	key := fmt.Sprintf(KeyUsernameIndex, username)

	id, err := s.client.Get(s.ctx, key).Int64()
	if err == nil {
		return id, nil
	}
	if err != redis.Nil {
		return 0, fmt.Errorf("failed to look up username: %v", err)
	}

	id, err = s.client.Incr(s.ctx, "user:next_id").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate user id: %v", err)
	}

	if err := s.client.Set(s.ctx, key, id, 0).Err(); err != nil {
		return 0, fmt.Errorf("failed to index username: %v", err)
	}

	return id, nil
}

func (s *RedisService) GetWallet(userID int64) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err == redis.Nil {
		wallet := models.NewWallet(userID)
		if err := s.SaveWallet(wallet); err != nil {
			return nil, fmt.Errorf("failed to create wallet: %v", err)
		}
		return wallet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %v", err)
	}

	return &wallet, nil
}

func (s *RedisService) SaveWallet(wallet *models.Wallet) error {
	key := fmt.Sprintf(KeyWallet, wallet.UserID)

	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %v", err)
	}

	return s.client.Set(s.ctx, key, data, 0).Err()
}

// NextNonce atomically advances and returns the wallet's provably fair
// counter. The returned value is the nonce the wallet held before the
// increment, so a fresh wallet plays nonce 0 first.
var nextNonceScript = redis.NewScript(`
	local key = KEYS[1]

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)
	local nonce = wallet.nonce
	wallet.nonce = wallet.nonce + 1

	redis.call("SET", key, cjson.encode(wallet))

	return nonce
`)

func (s *RedisService) NextNonce(userID int64) (int64, error) {
	key := fmt.Sprintf(KeyWallet, userID)
	nonce, err := nextNonceScript.Run(s.ctx, s.client, []string{key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to advance nonce: %v", err)
	}
	return nonce, nil
}

var lockBalanceScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	if wallet.balance < amount then
		return redis.error_reply("insufficient balance")
	end

	wallet.balance = wallet.balance - amount
	wallet.locked_balance = wallet.locked_balance + amount
	wallet.total_wagered = wallet.total_wagered + amount

	redis.call("SET", key, cjson.encode(wallet))

	return "OK"
`)

func (s *RedisService) LockBalanceForGame(userID int64, amount float64) error {
	key := fmt.Sprintf(KeyWallet, userID)
	return lockBalanceScript.Run(s.ctx, s.client, []string{key}, amount).Err()
}

var releaseBalanceScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])
	local won = ARGV[2] == "true"
	local winnings = tonumber(ARGV[3])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	wallet.locked_balance = wallet.locked_balance - amount
	if wallet.locked_balance < 0 then
		wallet.locked_balance = 0
	end

	if won then
		wallet.balance = wallet.balance + winnings
		wallet.total_won = wallet.total_won + winnings
	end

	redis.call("SET", key, cjson.encode(wallet))

	return "OK"
`)

// ReleaseBalanceFromGame unlocks a settled bet; when won, winnings are the
// gross payout credited back to the balance.
func (s *RedisService) ReleaseBalanceFromGame(userID int64, amount float64, won bool, winnings float64) error {
	key := fmt.Sprintf(KeyWallet, userID)
	return releaseBalanceScript.Run(s.ctx, s.client, []string{key}, amount, strconv.FormatBool(won), winnings).Err()
}

func (s *RedisService) SaveGameRecord(record *models.GameRecord) error {
	recordKey := fmt.Sprintf(KeyGameRecord, record.ID)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal game record: %v", err)
	}

	if err := s.client.Set(s.ctx, recordKey, data, TTLGameRecord).Err(); err != nil {
		return fmt.Errorf("failed to save game record: %v", err)
	}

	if record.Status == "active" {
		activeKey := fmt.Sprintf(KeyUserActiveGames, record.UserID)
		if err := s.client.SAdd(s.ctx, activeKey, record.ID).Err(); err != nil {
			return fmt.Errorf("failed to add to active games: %v", err)
		}
		s.client.Expire(s.ctx, activeKey, TTLGameRecord)
	}

	return nil
}

func (s *RedisService) GetGameRecord(gameID string) (*models.GameRecord, error) {
	key := fmt.Sprintf(KeyGameRecord, gameID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("game not found: %s", gameID)
		}
		return nil, fmt.Errorf("failed to get game record: %v", err)
	}

	var record models.GameRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game record: %v", err)
	}

	return &record, nil
}

func (s *RedisService) UpdateGameRecord(record *models.GameRecord) error {
	record.UpdatedAt = time.Now()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal game record: %v", err)
	}

	key := fmt.Sprintf(KeyGameRecord, record.ID)
	return s.client.Set(s.ctx, key, data, TTLGameRecord).Err()
}

func (s *RedisService) GetUserActiveGames(userID int64) ([]string, error) {
	key := fmt.Sprintf(KeyUserActiveGames, userID)

	games, err := s.client.SMembers(s.ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active games: %v", err)
	}

	return games, nil
}

func (s *RedisService) CompleteGameRecord(userID int64, gameID string) error {
	activeKey := fmt.Sprintf(KeyUserActiveGames, userID)
	if err := s.client.SRem(s.ctx, activeKey, gameID).Err(); err != nil {
		return fmt.Errorf("failed to remove from active games: %v", err)
	}

	completedKey := fmt.Sprintf(KeyUserCompletedGames, userID)
	score := float64(time.Now().Unix())
	if err := s.client.ZAdd(s.ctx, completedKey, redis.Z{
		Score:  score,
		Member: gameID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to completed games: %v", err)
	}

	s.client.ZRemRangeByRank(s.ctx, completedKey, 0, -101)

	return nil
}

func (s *RedisService) SaveTransaction(tx *models.Transaction) error {
	txKey := fmt.Sprintf(KeyTransaction, tx.ID)

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}

	if err := s.client.Set(s.ctx, txKey, data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("failed to save transaction: %v", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)
	score := float64(tx.CreatedAt.Unix())

	if err := s.client.ZAdd(s.ctx, userTxKey, redis.Z{
		Score:  score,
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to user transactions: %v", err)
	}

	// Keep only last 100 transactions
	s.client.ZRemRangeByRank(s.ctx, userTxKey, 0, -101)

	return nil
}

func (s *RedisService) GetUserTransactions(userID int64, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, userID)

	txIDs, err := s.client.ZRevRange(s.ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %v", err)
	}

	var transactions []*models.Transaction
	for _, txID := range txIDs {
		txKey := fmt.Sprintf(KeyTransaction, txID)

		data, err := s.client.Get(s.ctx, txKey).Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}

		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

func (s *RedisService) GetGameHistory(userID int64, limit int64) ([]*models.GameRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	completedKey := fmt.Sprintf(KeyUserCompletedGames, userID)

	gameIDs, err := s.client.ZRevRange(s.ctx, completedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game IDs: %v", err)
	}

	var games []*models.GameRecord
	for _, gameID := range gameIDs {
		record, err := s.GetGameRecord(gameID)
		if err != nil {
			continue
		}

		games = append(games, record)
	}

	return games, nil
}

func (s *RedisService) CheckRateLimit(userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(s.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(s.ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) RecordBetPattern(userID int64, amount float64, gameType models.GameType) error {
	patternKey := fmt.Sprintf(KeyBetPatterns, userID)

	patternData := map[string]interface{}{
		"amount":    amount,
		"game_type": gameType,
		"timestamp": time.Now().Unix(),
	}

	data, err := json.Marshal(patternData)
	if err != nil {
		return err
	}

	s.client.LPush(s.ctx, patternKey, data)
	s.client.LTrim(s.ctx, patternKey, 0, 49)

	return nil
}

// DiscardGameRecord removes a record that never produced an outcome,
// for example a bet rolled back before the round accepted it.
func (s *RedisService) DiscardGameRecord(userID int64, gameID string) error {
	activeKey := fmt.Sprintf(KeyUserActiveGames, userID)
	s.client.SRem(s.ctx, activeKey, gameID)
	return s.DeleteGameRecord(gameID)
}

func (s *RedisService) DeleteWallet(userID int64) error {
	key := fmt.Sprintf(KeyWallet, userID)
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisService) DeleteGameRecord(gameID string) error {
	key := fmt.Sprintf(KeyGameRecord, gameID)
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisService) ClearRateLimit(userID int64, action string) error {
	key := fmt.Sprintf(KeyRateLimit, userID, action)
	return s.client.Del(s.ctx, key).Err()
}
