package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	// Пакеты могут логировать до вызова Init (например, в тестах).
	Log = logrus.New()
	Log.SetOutput(os.Stdout)
}

// Init инициализирует структурированный логгер: JSON в production, текст в development.
func Init(level, env string) {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if env == "production" {
		Log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	SetTextFormatter()
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Service возвращает запись с полем service, чтобы логи шлюза и сервисов различались.
func Service(name string) *logrus.Entry {
	return Log.WithField("service", name)
}
