package handler

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
	"github.com/jwalitptl/ehr-chainview/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// TxResponse is returned once a relayed transaction is mined and the view
// has been reloaded.
type TxResponse struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	Status      string      `json:"status"`
}

func NewTxResponse(r *types.Receipt) TxResponse {
	var block uint64
	if r.BlockNumber != nil {
		block = r.BlockNumber.Uint64()
	}
	status := "reverted"
	if r.Status == types.ReceiptStatusSuccessful {
		status = "confirmed"
	}
	return TxResponse{
		TxHash:      r.TxHash,
		BlockNumber: block,
		GasUsed:     r.GasUsed,
		Status:      status,
	}
}

// OK writes data as a success response.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

// Fail hands err to the error middleware and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// BindJSON binds and validates the body, failing the request on error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Fail(c, apperrors.BadRequest(validator.Describe(err), err))
		return false
	}
	return true
}

// BindQuery binds and validates the query string.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		Fail(c, apperrors.BadRequest(validator.Describe(err), err))
		return false
	}
	return true
}

// AddressParam reads a path parameter that must hold an address.
func AddressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		Fail(c, apperrors.BadRequest(name+" must be an address", nil))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// GroupID parses a decimal research group id.
func GroupID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, apperrors.BadRequest("group_id must be a non-negative integer", nil)
	}
	return id, nil
}
