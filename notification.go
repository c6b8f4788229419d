package stopkeep

import (
	"github.com/raykavin/stopkeep/notification"
)

// initializeNotifications sets up notification systems like Telegram
func initializeNotifications(service *Service) error {
	if !service.settings.Telegram.Enabled {
		return nil
	}

	telegram, err := notification.NewTelegram(service.engine, service.keeper, service.settings, service.log)
	if err != nil {
		return err
	}

	service.telegram = telegram
	WithNotifier(telegram)(service)
	return nil
}
