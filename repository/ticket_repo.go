package repository

import (
	"context"
	"time"

	"github.com/filpass_credits/model"
	"gorm.io/gorm"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CountValid counts a ledger's currently VALID tickets; the global per-ledger
// cap minus this is the number of free ticket slots.
func (r *TicketRepository) CountValid(ctx context.Context, userCreditID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CreditTicket{}).
		Joins("JOIN ticket_groups ON ticket_groups.id = credit_tickets.ticket_group_id").
		Where("ticket_groups.user_credit_id = ? AND credit_tickets.status = ?", userCreditID, model.TicketValid).
		Count(&count).Error
	return count, err
}

// FindGroup loads one of the user's ticket groups and maintains its expired
// flag against the clock on the way out, so a persisted group never reports
// fresher than its ExpiresAt.
func (r *TicketRepository) FindGroup(ctx context.Context, groupID, userID uint) (*model.TicketGroup, error) {
	var group model.TicketGroup
	if err := r.db.WithContext(ctx).
		Select("ticket_groups.*").
		Joins("JOIN user_credits ON user_credits.id = ticket_groups.user_credit_id").
		Where("ticket_groups.id = ? AND user_credits.user_id = ?", groupID, userID).
		First(&group).Error; err != nil {
		return nil, err
	}
	if !group.Expired && group.ExpiresAt.Before(time.Now()) {
		if err := r.db.WithContext(ctx).Model(&model.TicketGroup{}).
			Where("id = ?", group.ID).
			Update("expired", true).Error; err != nil {
			return nil, err
		}
		group.Expired = true
	}
	return &group, nil
}

// ListByGroup pages through one group's tickets in issue order and reports
// how many are no longer redeemable.
func (r *TicketRepository) ListByGroup(ctx context.Context, groupID, userID uint, page, size int) ([]*model.CreditTicket, int64, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.CreditTicket{}).
		Joins("JOIN ticket_groups ON ticket_groups.id = credit_tickets.ticket_group_id").
		Joins("JOIN user_credits ON user_credits.id = ticket_groups.user_credit_id").
		Where("ticket_groups.id = ? AND user_credits.user_id = ?", groupID, userID)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	var redeemed int64
	if err := base.Session(&gorm.Session{}).
		Where("credit_tickets.status <> ?", model.TicketValid).
		Count(&redeemed).Error; err != nil {
		return nil, 0, 0, err
	}

	if page < 1 {
		page = 1
	}
	var tickets []*model.CreditTicket
	if err := base.Session(&gorm.Session{}).
		Order("credit_tickets.id asc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&tickets).Error; err != nil {
		return nil, 0, 0, err
	}
	return tickets, total, redeemed, nil
}

// FindByPublicID loads a ticket with its group and ledger.
func (r *TicketRepository) FindByPublicID(ctx context.Context, publicID string) (*model.CreditTicket, error) {
	var ticket model.CreditTicket
	if err := r.db.WithContext(ctx).
		Preload("TicketGroup").
		Preload("TicketGroup.UserCredit").
		Where("public_id = ?", publicID).
		First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CountRedemptionsSince counts redemption submissions for a receiver's
// ledgers created at or after since. Used for the daily redemption cap.
func (r *TicketRepository) CountRedemptionsSince(ctx context.Context, receiverID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WithdrawTransaction{}).
		Joins("JOIN user_credits ON user_credits.id = withdraw_transactions.user_credit_id").
		Where("user_credits.receiver_id = ? AND withdraw_transactions.created_at >= ?", receiverID, since).
		Count(&count).Error
	return count, err
}
