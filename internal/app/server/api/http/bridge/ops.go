package bridge

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const maxBatchBodyBytes = 16 << 20

var apiKeySecurity = []map[string][]string{{"apiKey": {}}}

func (h *Handler) ingestOp() huma.Operation {
	return huma.Operation{
		OperationID:  "bridge-ingest",
		Method:       http.MethodPost,
		Path:         "/bridge/{entity}",
		Summary:      "Принять батч записей от коннектора",
		Description:  "Идемпотентный merge-upsert по externalId. Пишется не больше лимита батча, остаток возвращается в remaining.",
		Tags:         []string{"bridge"},
		Security:     apiKeySecurity,
		MaxBodyBytes: maxBatchBodyBytes,
		Middlewares:  h.middleware,
	}
}

func (h *Handler) pendingExportsOp() huma.Operation {
	return huma.Operation{
		OperationID: "bridge-pending-exports",
		Method:      http.MethodGet,
		Path:        "/bridge/pending-exports",
		Summary:     "Забрать команды для коннектора",
		Description: "Атомарно переводит страницу pending-команд в fetched.",
		Tags:        []string{"bridge"},
		Security:    apiKeySecurity,
		Middlewares: h.middleware,
	}
}

func (h *Handler) ackOp() huma.Operation {
	return huma.Operation{
		OperationID: "bridge-command-ack",
		Method:      http.MethodPost,
		Path:        "/bridge/commands/{id}/ack",
		Summary:     "Подтвердить исполнение команды",
		Tags:        []string{"bridge"},
		Security:    apiKeySecurity,
		Middlewares: h.middleware,
	}
}

func (h *Handler) enqueueOp() huma.Operation {
	return huma.Operation{
		OperationID:   "bridge-enqueue-export",
		Method:        http.MethodPost,
		Path:          "/bridge/exports",
		Summary:       "Поставить команду в очередь",
		Tags:          []string{"bridge"},
		Security:      apiKeySecurity,
		DefaultStatus: http.StatusCreated,
		Middlewares:   h.middleware,
	}
}
