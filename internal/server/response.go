package server

import (
	"encoding/json"
	"net/http"

	apperrors "sudooom.im.realtime/internal/errors"
)

type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError 按错误分类写出状态码，只暴露对外消息
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), errorBody{
		Message: apperrors.GetMessage(err),
		Code:    apperrors.GetCode(err),
	})
}
