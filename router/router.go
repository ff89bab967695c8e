package router

import (
	"github.com/filpass_credits/handler"
	"github.com/gin-gonic/gin"
)

func SetupRouter(creditHandler *handler.CreditHandler) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	{
		api.POST("/credits/buy", creditHandler.BuyCredits)
		api.GET("/credits", creditHandler.GetUserCredits)
		api.POST("/credits/:id/refund", creditHandler.RefundCredits)
		api.POST("/credits/:id/tickets", creditHandler.CreateTickets)
		api.GET("/ticket-groups/:id/tickets", creditHandler.GetTicketsByGroup)
		api.POST("/tickets/redeem", creditHandler.RedeemTicket)
		api.POST("/jobs/verify-transfers", creditHandler.RunVerifyTransfers)
	}

	return r
}
