package signingservice

type prepareRequest struct {
	Trader    string   `json:"trader"`
	Direction string   `json:"direction"`
	AssetIDs  []string `json:"asset_ids"`
	Amounts   []string `json:"amounts"`
	Bound     string   `json:"bound"`
	Deadline  int64    `json:"deadline"`
}

type prepareResponse struct {
	Signature   string `json:"signature"`
	Nonce       string `json:"nonce"`
	ExternalRef string `json:"external_ref"`
}

type confirmRequest struct {
	TxHash string `json:"tx_hash"`
}

type errorResponse struct {
	Error string `json:"error"`
}
