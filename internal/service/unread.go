package service

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// UnreadCounter 未读数查询
type UnreadCounter interface {
	CountUnreadForConversation(ctx context.Context, viewerUserID, withUserID string) (int, error)
	CountUnreadTotal(ctx context.Context, viewerUserID string) (int, error)
}

// UnreadSnapshot 某个用户视角下的未读数
type UnreadSnapshot struct {
	// Conversation 与对端会话中的未读数
	Conversation int
	// Total 全部会话的未读数
	Total int
}

// UnreadService 统一计算未读快照，避免各处分别统计
type UnreadService struct {
	counter UnreadCounter
}

// NewUnreadService 创建未读服务
func NewUnreadService(counter UnreadCounter) *UnreadService {
	return &UnreadService{counter: counter}
}

// ComputeUnreadSnapshot 并发统计 viewer 在与 partner 会话中的未读数和总未读数
func (s *UnreadService) ComputeUnreadSnapshot(ctx context.Context, viewerUserID, partnerUserID string) (UnreadSnapshot, error) {
	var snapshot UnreadSnapshot

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.counter.CountUnreadForConversation(ctx, viewerUserID, partnerUserID)
		snapshot.Conversation = n
		return err
	})
	g.Go(func() error {
		n, err := s.counter.CountUnreadTotal(ctx, viewerUserID)
		snapshot.Total = n
		return err
	})

	if err := g.Wait(); err != nil {
		return UnreadSnapshot{}, err
	}
	return snapshot, nil
}

// ComputePairSnapshots 同时计算会话双方的未读快照
func (s *UnreadService) ComputePairSnapshots(ctx context.Context, userA, userB string) (UnreadSnapshot, UnreadSnapshot, error) {
	var a, b UnreadSnapshot

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = s.ComputeUnreadSnapshot(ctx, userA, userB)
		return err
	})
	g.Go(func() (err error) {
		b, err = s.ComputeUnreadSnapshot(ctx, userB, userA)
		return err
	})

	if err := g.Wait(); err != nil {
		return UnreadSnapshot{}, UnreadSnapshot{}, err
	}
	return a, b, nil
}
