package service

// EncryptRequest asks for a payload to be encrypted and persisted
type EncryptRequest struct {
	Data         string `json:"data"`
	Password     string `json:"password"`
	ResourceType string `json:"resource_type"`
}

// EncryptResponse carries the produced ciphertext and its resource identifier
type EncryptResponse struct {
	EncryptedData string `json:"encrypted_data"`
	ResourceID    string `json:"resource_id"`
}

// DecryptRequest asks for a payload to be decrypted, either fetched by
// resource identifier or supplied inline. Exactly one source must be set.
type DecryptRequest struct {
	EncryptedData string `json:"encrypted_data,omitempty"`
	Password      string `json:"password"`
	ResourceType  string `json:"resource_type"`
	ResourceID    string `json:"resource_id,omitempty"`
}

// DecryptResponse carries the recovered plaintext. ResourceID is empty when
// decrypting an inline payload with no identifier.
type DecryptResponse struct {
	Data       string `json:"data"`
	ResourceID string `json:"resource_id,omitempty"`
}

// BatchEncryptItem is one positional result of a batch encrypt. Exactly one
// of Response or Err is set.
type BatchEncryptItem struct {
	Response *EncryptResponse
	Err      error
}

// BatchDecryptItem is one positional result of a batch decrypt
type BatchDecryptItem struct {
	Response *DecryptResponse
	Err      error
}
