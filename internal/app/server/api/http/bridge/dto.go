package bridge

import (
	"vetbridge/internal/domain/mailbox"
)

type ingestInput struct {
	Entity  string `path:"entity" example:"patients" doc:"Тип сущности: patients, clients, calendar, calendar-events"`
	RawBody []byte `contentType:"application/json"`
}

type ingestOutput struct {
	Body ingestResponse
}

type ingestResponse struct {
	Success   bool `json:"success" doc:"Батч записан"`
	Count     int  `json:"count" doc:"Сколько записей применено"`
	Remaining int  `json:"remaining" doc:"Сколько записей не влезло в батч и должно быть отправлено повторно"`
}

type pendingOutput struct {
	Body pendingResponse
}

type pendingResponse struct {
	Commands []mailbox.Command `json:"commands"`
}

type ackInput struct {
	ID   string `path:"id" doc:"ID команды"`
	Body ackRequest
}

type ackRequest struct {
	Status string `json:"status" enum:"done,failed" doc:"Результат исполнения"`
	Error  string `json:"error,omitempty" doc:"Текст ошибки для failed"`
}

type commandOutput struct {
	Body commandResponse
}

type commandResponse struct {
	Command mailbox.Command `json:"command"`
}

type enqueueInput struct {
	Body enqueueRequest
}

type enqueueRequest struct {
	Type    string         `json:"type" minLength:"1" example:"export_invoice" doc:"Тип команды"`
	Payload map[string]any `json:"payload,omitempty" doc:"Параметры команды"`
}
