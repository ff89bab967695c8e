package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/filpass_credits/apperrors"
	"github.com/filpass_credits/credit"
	"github.com/filpass_credits/fil"
	"github.com/filpass_credits/jobs"
	"github.com/filpass_credits/repository"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreditHandler struct {
	credits *credit.CreditService
	tickets *credit.TicketService
	redeems *credit.RedeemService
	verify  *jobs.VerifyTransfersJob
	groups  *repository.TicketRepository
}

func NewCreditHandler(
	credits *credit.CreditService,
	tickets *credit.TicketService,
	redeems *credit.RedeemService,
	verify *jobs.VerifyTransfersJob,
	groups *repository.TicketRepository,
) *CreditHandler {
	return &CreditHandler{
		credits: credits,
		tickets: tickets,
		redeems: redeems,
		verify:  verify,
		groups:  groups,
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.PublicMessage(err)})
}

// userIDQuery rejects a missing or malformed userId outright instead of
// letting it collapse to user 0 and surface as a not-found.
func userIDQuery(c *gin.Context) (uint, bool) {
	userID, err := strconv.ParseUint(c.Query("userId"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(userID), true
}

type buyCreditsRequest struct {
	UserID               uint   `json:"userId" binding:"required"`
	From                 string `json:"from" binding:"required"`
	To                   string `json:"to" binding:"required"`
	Amount               string `json:"amount" binding:"required"` // FIL
	TransactionHash      string `json:"transactionHash" binding:"required"`
	ContractID           uint   `json:"contractId" binding:"required"`
	AdditionalTicketDays int    `json:"additionalTicketDays" binding:"required"`
}

// POST /api/credits/buy
func (h *CreditHandler) BuyCredits(c *gin.Context) {
	var req buyCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amount, err := fil.ParseFIL(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit amount"})
		return
	}

	tx, err := h.credits.BuyCredits(c, credit.BuyCreditsParams{
		UserID:               req.UserID,
		From:                 req.From,
		To:                   req.To,
		Amount:               amount.String(),
		TransactionHash:      req.TransactionHash,
		ContractID:           req.ContractID,
		AdditionalTicketDays: req.AdditionalTicketDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// POST /api/credits/:id/refund
func (h *CreditHandler) RefundCredits(c *gin.Context) {
	creditID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return
	}
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	refund, err := h.credits.RefundCredits(c, uint(creditID), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": refund})
}

// GET /api/credits
func (h *CreditHandler) GetUserCredits(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	list, total, err := h.credits.GetUserCredits(c, userID, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "records": list})
}

type createTicketsRequest struct {
	UserID          uint   `json:"userId" binding:"required"`
	SplitNumber     int    `json:"splitNumber" binding:"required"`
	CreditPerTicket string `json:"creditPerTicket" binding:"required"` // FIL
}

// POST /api/credits/:id/tickets
func (h *CreditHandler) CreateTickets(c *gin.Context) {
	creditID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return
	}

	var req createTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	perTicket, err := fil.ParseFIL(req.CreditPerTicket)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit per ticket"})
		return
	}

	result, err := h.tickets.CreateTickets(c, credit.CreateTicketsParams{
		UserCreditID:    uint(creditID),
		UserID:          req.UserID,
		SplitNumber:     req.SplitNumber,
		CreditPerTicket: perTicket,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": result.Group, "tickets": result.Tickets})
}

// GET /api/ticket-groups/:id/tickets
func (h *CreditHandler) GetTicketsByGroup(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	group, err := h.groups.FindGroup(c, uint(groupID), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperrors.NotFound("ticket group not found"))
			return
		}
		respondError(c, err)
		return
	}

	tickets, total, redeemed, err := h.groups.ListByGroup(c, uint(groupID), userID, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "total": total, "redeemed": redeemed, "records": tickets})
}

type redeemRequest struct {
	Token string `json:"token" binding:"required"`
}

// POST /api/tickets/redeem
func (h *CreditHandler) RedeemTicket(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	withdraw, err := h.redeems.Redeem(c, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdraw": withdraw})
}

// POST /api/jobs/verify-transfers
func (h *CreditHandler) RunVerifyTransfers(c *gin.Context) {
	summary, err := h.verify.Run(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
