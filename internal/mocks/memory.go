package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// MemoryUserRepo is an in-memory UserRepository.
type MemoryUserRepo struct {
	mu      sync.Mutex
	nextID  int
	users   map[int]models.User
	blocked map[[2]int]bool
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		nextID:  1,
		users:   make(map[int]models.User),
		blocked: make(map[[2]int]bool),
	}
}

// Seed inserts a user with a fixed id.
func (r *MemoryUserRepo) Seed(user models.User) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID
	}
	if user.ID >= r.nextID {
		r.nextID = user.ID + 1
	}
	r.users[user.ID] = user
	return user
}

func (r *MemoryUserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now().UTC()
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepo) UserExists(ctx context.Context, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok, nil
}

func (r *MemoryUserRepo) SetLastSeen(ctx context.Context, userID int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.LastSeen = &at
		r.users[userID] = user
	}
	return nil
}

func (r *MemoryUserRepo) UpdatePrivacy(ctx context.Context, userID int, privacy models.Privacy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.Privacy = privacy
	r.users[userID] = user
	return nil
}

func (r *MemoryUserRepo) Block(ctx context.Context, userID, targetID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[[2]int{userID, targetID}] = true
	return nil
}

func (r *MemoryUserRepo) Unblock(ctx context.Context, userID, targetID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocked, [2]int{userID, targetID})
	return nil
}

func (r *MemoryUserRepo) HasBlocked(ctx context.Context, userID, targetID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked[[2]int{userID, targetID}], nil
}

type memoryChat struct {
	chat         models.Chat
	participants map[int]*models.Participant
}

// MemoryChatRepo is an in-memory ChatRepository.
type MemoryChatRepo struct {
	mu     sync.Mutex
	nextID int
	chats  map[int]*memoryChat
	pairs  map[[2]int]int
	users  *MemoryUserRepo
}

func NewMemoryChatRepo(users *MemoryUserRepo) *MemoryChatRepo {
	return &MemoryChatRepo{
		nextID: 1,
		chats:  make(map[int]*memoryChat),
		pairs:  make(map[[2]int]int),
		users:  users,
	}
}

func pairOf(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func (r *MemoryChatRepo) CreateOrGetIndividualChat(ctx context.Context, userID, otherID int) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.pairs[pairOf(userID, otherID)]; ok {
		return r.snapshotLocked(id), nil
	}
	chat := r.createLocked(models.ChatIndividual, "", 0, []int{userID, otherID})
	r.pairs[pairOf(userID, otherID)] = chat.ID
	return chat, nil
}

func (r *MemoryChatRepo) CreateGroupChat(ctx context.Context, name string, creatorID int, participantIDs []int) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(models.ChatGroup, name, creatorID, participantIDs), nil
}

func (r *MemoryChatRepo) createLocked(chatType models.ChatType, name string, creatorID int, participantIDs []int) models.Chat {
	id := r.nextID
	r.nextID++
	mc := &memoryChat{
		chat: models.Chat{
			ID:        id,
			Type:      chatType,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		participants: make(map[int]*models.Participant),
	}
	for _, uid := range participantIDs {
		synthetic := false
		if r.users != nil {
			if user, err := r.users.GetUser(context.Background(), uid); err == nil {
				synthetic = user.IsSynthetic
			}
		}
		mc.participants[uid] = &models.Participant{UserID: uid, IsSynthetic: synthetic, IsAdmin: uid == creatorID}
	}
	r.chats[id] = mc
	return r.snapshotLocked(id)
}

func (r *MemoryChatRepo) snapshotLocked(chatID int) models.Chat {
	mc := r.chats[chatID]
	chat := mc.chat
	chat.Participants = make([]models.Participant, 0, len(mc.participants))
	for _, p := range mc.participants {
		chat.Participants = append(chat.Participants, *p)
	}
	sort.Slice(chat.Participants, func(i, j int) bool {
		return chat.Participants[i].UserID < chat.Participants[j].UserID
	})
	return chat
}

func (r *MemoryChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[chatID]; !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return r.snapshotLocked(chatID), nil
}

func (r *MemoryChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.chats[chatID]
	if !ok {
		return false, nil
	}
	_, in := mc.participants[userID]
	return in, nil
}

func (r *MemoryChatRepo) Participants(ctx context.Context, chatID int) ([]models.Participant, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.Participants, nil
}

func (r *MemoryChatRepo) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatSummary
	for id, mc := range r.chats {
		p, ok := mc.participants[userID]
		if !ok {
			continue
		}
		out = append(out, models.ChatSummary{
			ChatID:      id,
			Type:        mc.chat.Type,
			Name:        mc.chat.Name,
			UnreadCount: p.UnreadCount,
			CreatedAt:   mc.chat.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (r *MemoryChatRepo) PeerIDs(ctx context.Context, userID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int]struct{}{}
	var out []int
	for _, mc := range r.chats {
		if _, ok := mc.participants[userID]; !ok {
			continue
		}
		for uid := range mc.participants {
			if uid == userID {
				continue
			}
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (r *MemoryChatRepo) AreContacts(ctx context.Context, userID, otherID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pairs[pairOf(userID, otherID)]
	return ok, nil
}

func (r *MemoryChatRepo) SetLastMessage(ctx context.Context, chatID, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mc, ok := r.chats[chatID]; ok {
		mc.chat.LastMessageID = &messageID
	}
	return nil
}

func (r *MemoryChatRepo) IncrementUnread(ctx context.Context, chatID, exceptUserID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.chats[chatID]
	if !ok {
		return repositories.ErrChatNotFound
	}
	for uid, p := range mc.participants {
		if uid != exceptUserID {
			p.UnreadCount++
		}
	}
	return nil
}

func (r *MemoryChatRepo) SetUnread(ctx context.Context, chatID, userID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mc, ok := r.chats[chatID]; ok {
		if p, in := mc.participants[userID]; in {
			p.UnreadCount = count
		}
	}
	return nil
}

// MemoryMessageRepo is an in-memory MessageRepository.
type MemoryMessageRepo struct {
	mu       sync.Mutex
	nextID   int
	messages map[int]models.Message
	receipts map[int]map[int]models.Receipt
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		nextID:   1,
		messages: make(map[int]models.Message),
		receipts: make(map[int]map[int]models.Receipt),
	}
}

func (r *MemoryMessageRepo) MaxSeq(ctx context.Context, chatID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, m := range r.messages {
		if m.ChatID == chatID && m.Seq > max {
			max = m.Seq
		}
	}
	return max, nil
}

func (r *MemoryMessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = r.nextID
	r.nextID++
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.messages[msg.ID] = msg
	return msg, nil
}

func (r *MemoryMessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (r *MemoryMessageRepo) ListMessages(ctx context.Context, chatID, afterSeq, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		if m.ChatID == chatID && m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) CountAfter(ctx context.Context, chatID, seq, excludeSenderID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.messages {
		if m.ChatID == chatID && m.Seq > seq && m.SenderID != excludeSenderID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepo) UpdateStatus(ctx context.Context, messageID int, status models.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	msg.Status = status
	r.messages[messageID] = msg
	return nil
}

func (r *MemoryMessageRepo) CreateReceipts(ctx context.Context, receipts []models.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, receipt := range receipts {
		byUser, ok := r.receipts[receipt.MessageID]
		if !ok {
			byUser = make(map[int]models.Receipt)
			r.receipts[receipt.MessageID] = byUser
		}
		byUser[receipt.UserID] = receipt
	}
	return nil
}

func (r *MemoryMessageRepo) RecipientReceipts(ctx context.Context, chatID, userID, uptoSeq int) ([]models.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Receipt
	for _, byUser := range r.receipts {
		receipt, ok := byUser[userID]
		if !ok || receipt.ChatID != chatID {
			continue
		}
		if uptoSeq > 0 && receipt.Seq > uptoSeq {
			continue
		}
		out = append(out, receipt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *MemoryMessageRepo) SetReceiptStatus(ctx context.Context, messageID, userID int, status models.ReceiptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.receipts[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	receipt, ok := byUser[userID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	receipt.Status = status
	byUser[userID] = receipt
	return nil
}

func (r *MemoryMessageRepo) MessageReceipts(ctx context.Context, messageID int) ([]models.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Receipt
	for _, receipt := range r.receipts[messageID] {
		out = append(out, receipt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryMessageRepo) PendingChatIDs(ctx context.Context, userID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int]struct{}{}
	var out []int
	for _, byUser := range r.receipts {
		receipt, ok := byUser[userID]
		if !ok || receipt.Status != models.ReceiptPending {
			continue
		}
		if _, dup := seen[receipt.ChatID]; dup {
			continue
		}
		seen[receipt.ChatID] = struct{}{}
		out = append(out, receipt.ChatID)
	}
	sort.Ints(out)
	return out, nil
}

// RecordingConn captures pushed payloads for assertions.
type RecordingConn struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	SendErr  error
}

func (c *RecordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.payloads = append(c.payloads, buf)
	return nil
}

func (c *RecordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Payloads returns a copy of everything sent so far.
func (c *RecordingConn) Payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.payloads))
	copy(out, c.payloads)
	return out
}
