package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The provider's documented callback shape, verbatim
const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const failureCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user."
    }
  }
}`

func TestSTKCallbackDecoding(t *testing.T) {
	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(successCallback), &cb))

	stk := cb.Body.StkCallback
	assert.Equal(t, "ws_CO_191220191020363925", stk.CheckoutRequestID)
	assert.Equal(t, 0, stk.ResultCode)
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber())
}

func TestSTKCallbackFailureHasNoReceipt(t *testing.T) {
	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(failureCallback), &cb))

	stk := cb.Body.StkCallback
	assert.Equal(t, 1032, stk.ResultCode)
	assert.Equal(t, "", cb.ReceiptNumber())
}

func TestReceiptNumberIgnoresNonStringValues(t *testing.T) {
	cb := &STKCallback{}
	cb.Body.StkCallback.CallbackMetadata.Item = []STKCallbackItem{
		{Name: "MpesaReceiptNumber", Value: 12345},
	}
	assert.Equal(t, "", cb.ReceiptNumber())
}
