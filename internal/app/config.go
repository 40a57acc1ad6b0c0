package app

import (
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/utils"
)

type Config struct {
	Port       string
	SRSPolicy  string
	QueueLimit int
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	policy := utils.GetEnv("SRS_POLICY", "triage", log)
	queueLimit := utils.GetEnvAsInt("QUEUE_LIMIT", 20, log)
	return Config{
		Port:       port,
		SRSPolicy:  policy,
		QueueLimit: queueLimit,
	}
}
