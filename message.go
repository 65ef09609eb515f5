package main

const (
	MsgRunning = "Dental AI API running successfully!"

	MsgNoUpload = "No image uploaded. Send the image as multipart form field 'file', as JSON {\"image\": \"<base64>\"}, or as the raw request body."

	MsgHistoryDisabled = "Prediction history is disabled. Set HISTORY_DB_PATH to enable it."
)
