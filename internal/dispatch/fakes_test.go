package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courier/internal/dispatch"
)

type fakeDelivery struct {
	mu       sync.Mutex
	maxLen   int
	messages map[string]dispatch.Message
	sent     []string
	replies  []string
	fetches  int
	sendErr  error
	next     int
}

func newFakeDelivery(maxLen int) *fakeDelivery {
	return &fakeDelivery{maxLen: maxLen, messages: map[string]dispatch.Message{}}
}

func (f *fakeDelivery) Fetch(_ context.Context, channelID, messageID string) (dispatch.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	msg, ok := f.messages[channelID+"/"+messageID]
	if !ok {
		return dispatch.Message{}, fmt.Errorf("message %s not found", messageID)
	}
	return msg, nil
}

func (f *fakeDelivery) Send(_ context.Context, _ string, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, content)
	f.next++
	return fmt.Sprintf("m%d", f.next), nil
}

func (f *fakeDelivery) Reply(_ context.Context, _ string, _ string, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	f.next++
	return fmt.Sprintf("m%d", f.next), nil
}

func (f *fakeDelivery) MaxMessageLength() int { return f.maxLen }

func (f *fakeDelivery) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent) + len(f.replies)
}

// slowGenerator ignores its context, like a client without request deadlines.
type slowGenerator struct {
	delay time.Duration
	reply string
}

func (g slowGenerator) Generate(context.Context, dispatch.GenerateRequest) (string, error) {
	time.Sleep(g.delay)
	return g.reply, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []dispatch.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req dispatch.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

type fakeConversations struct {
	mu    sync.Mutex
	turns []dispatch.Turn
	calls int
	err   error
}

func (f *fakeConversations) History(_ context.Context, _ string, limit int) ([]dispatch.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	turns := f.turns
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

type fakeSkills struct {
	mu       sync.Mutex
	resp     dispatch.SkillResponse
	err      error
	requests []dispatch.SkillRequest
}

func (f *fakeSkills) Invoke(_ context.Context, req dispatch.SkillRequest) (dispatch.SkillResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

type fakeActions struct {
	resp     dispatch.ActionResponse
	err      error
	requests []dispatch.ActionRequest
}

func (f *fakeActions) Execute(_ context.Context, req dispatch.ActionRequest) (dispatch.ActionResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

type panickingSkills struct{}

func (panickingSkills) Invoke(context.Context, dispatch.SkillRequest) (dispatch.SkillResponse, error) {
	panic("skills exploded")
}

type blockingSkills struct{}

func (blockingSkills) Invoke(ctx context.Context, _ dispatch.SkillRequest) (dispatch.SkillResponse, error) {
	<-ctx.Done()
	return dispatch.SkillResponse{}, ctx.Err()
}
