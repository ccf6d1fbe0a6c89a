package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Signer computes request MACs with key1 and verifies callback MACs with key2.
type Signer struct {
	requestKey  []byte
	callbackKey []byte
}

// NewSigner builds a Signer from the two gateway keys.
func NewSigner(key1, key2 string) (Signer, error) {
	if strings.TrimSpace(key1) == "" || strings.TrimSpace(key2) == "" {
		return Signer{}, errors.New("payments: both gateway keys are required")
	}
	return Signer{requestKey: []byte(key1), callbackKey: []byte(key2)}, nil
}

// SignRequest returns hex(HMAC-SHA256(key1, fields joined by "|")).
func (s Signer) SignRequest(fields ...string) string {
	return hex.EncodeToString(macOf(s.requestKey, strings.Join(fields, "|")))
}

// VerifyCallback checks mac against hex(HMAC-SHA256(key2, data)).
func (s Signer) VerifyCallback(data, mac string) error {
	provided, err := hex.DecodeString(strings.TrimSpace(mac))
	if err != nil || len(provided) == 0 {
		return ErrInvalidMAC
	}
	if !hmac.Equal(provided, macOf(s.callbackKey, data)) {
		return ErrInvalidMAC
	}
	return nil
}

// SignCallback produces the MAC a gateway would send for data.
func (s Signer) SignCallback(data string) string {
	return hex.EncodeToString(macOf(s.callbackKey, data))
}

func macOf(key []byte, message string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return h.Sum(nil)
}

type callbackData struct {
	GatewayTransID  string          `json:"gatewayTransId"`
	AppTransID      string          `json:"app_trans_id"`
	ReturnCode      *int            `json:"returnCode"`
	ReturnCodeSnake *int            `json:"return_code"`
	ZpTransID       json.RawMessage `json:"zp_trans_id"`
	Amount          json.Number     `json:"amount"`
}

// ParseCallback verifies the MAC and decodes the base64 JSON data. Nothing is decoded when
// the MAC does not match.
func (s Signer) ParseCallback(payload CallbackPayload) (CallbackEvent, error) {
	if err := s.VerifyCallback(payload.Data, payload.MAC); err != nil {
		return CallbackEvent{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload.Data))
	if err != nil {
		return CallbackEvent{}, fmt.Errorf("%w: data is not base64: %v", ErrMalformedCallback, err)
	}
	var data callbackData
	if err := json.Unmarshal(raw, &data); err != nil {
		return CallbackEvent{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	event := CallbackEvent{
		TransID:        strings.TrimSpace(data.GatewayTransID),
		ReturnCode:     ReturnCodeSuccess,
		GatewayTransID: rawScalar(data.ZpTransID),
	}
	if event.TransID == "" {
		event.TransID = strings.TrimSpace(data.AppTransID)
	}
	if event.TransID == "" {
		return CallbackEvent{}, fmt.Errorf("%w: missing transaction id", ErrMalformedCallback)
	}
	switch {
	case data.ReturnCode != nil:
		event.ReturnCode = *data.ReturnCode
	case data.ReturnCodeSnake != nil:
		event.ReturnCode = *data.ReturnCodeSnake
	}
	if data.Amount != "" {
		amount, err := data.Amount.Int64()
		if err != nil {
			return CallbackEvent{}, fmt.Errorf("%w: amount: %v", ErrMalformedCallback, err)
		}
		event.Amount = amount
	}
	return event, nil
}

func rawScalar(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	return strings.Trim(value, `"`)
}

// EncodeCallback builds a signed callback payload for the given event. Used by tests and local
// tooling that simulates the gateway.
func (s Signer) EncodeCallback(event CallbackEvent) (CallbackPayload, error) {
	body := map[string]any{
		"gatewayTransId": event.TransID,
		"returnCode":     event.ReturnCode,
	}
	if event.GatewayTransID != "" {
		body["zp_trans_id"] = event.GatewayTransID
	}
	if event.Amount > 0 {
		body["amount"] = event.Amount
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return CallbackPayload{}, err
	}
	data := base64.StdEncoding.EncodeToString(raw)
	return CallbackPayload{Data: data, MAC: s.SignCallback(data)}, nil
}
