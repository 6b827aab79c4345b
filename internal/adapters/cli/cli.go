// Package cli — интерактивная консоль менеджера сессий. Сервис читает выбор
// оператора из readline-меню и диспетчеризует действия над реестром, файловым
// хранилищем секретов и подключёнными клиентами Telegram. Набор действий закрыт
// перечислением Action, вся диспетчеризация — в одном switch.
package cli

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/credpool"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
	"telegram-sessman/internal/infra/tgclient"
	"telegram-sessman/internal/infra/throttle"
	"telegram-sessman/internal/support/version"
)

// Action — закрытое перечисление действий меню. Номера стабильны: оператор
// набирает их вслепую, перестановка ломает мышечную память.
type Action int

// Действия меню.
const (
	ActionExit Action = iota
	ActionCreateSession
	ActionListSessions
	ActionShowSession
	ActionCheckHealth
	ActionBulkCheck
	ActionTerminateDevices
	ActionUpdateProfile
	ActionClearContacts
	ActionDeleteDialogs
	ActionReadOTP
	ActionManage2FA
	ActionEditNotes
	ActionDeleteSession
	ActionCleanup
	ActionBackup
	ActionExportCSV
	ActionStats
	ActionPoolUsage
)

// menuEntry — одна строка меню.
type menuEntry struct {
	action Action
	title  string
}

// menuEntries — порядок вывода меню. Номера берутся из значений Action.
var menuEntries = []menuEntry{
	{ActionCreateSession, "Create session (login)"},
	{ActionListSessions, "List sessions"},
	{ActionShowSession, "Show session details"},
	{ActionCheckHealth, "Check session health"},
	{ActionBulkCheck, "Bulk health check"},
	{ActionTerminateDevices, "Terminate other devices"},
	{ActionUpdateProfile, "Update profile"},
	{ActionClearContacts, "Clear contacts"},
	{ActionDeleteDialogs, "Delete dialogs"},
	{ActionReadOTP, "Read login codes"},
	{ActionManage2FA, "Manage 2FA password"},
	{ActionEditNotes, "Edit session notes"},
	{ActionDeleteSession, "Delete session"},
	{ActionCleanup, "Cleanup stale sessions"},
	{ActionBackup, "Backup session files"},
	{ActionExportCSV, "Export sessions to CSV"},
	{ActionStats, "Show statistics"},
	{ActionPoolUsage, "Show credential pool usage"},
	{ActionExit, "Exit"},
}

// Service — CLI-сервис. Запускается в отдельной горутине, останавливается
// идемпотентно через Stop.
type Service struct {
	env     config.EnvConfig
	pool    *credpool.Pool
	reg     *registry.Registry
	store   *secrets.Store
	th      *throttle.Throttler
	stopApp context.CancelFunc

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт CLI-сервис поверх собранных зависимостей. stopApp —
// внешняя остановка приложения (действие Exit, Ctrl-C).
func NewService(
	env config.EnvConfig,
	pool *credpool.Pool,
	reg *registry.Registry,
	store *secrets.Store,
	th *throttle.Throttler,
	stopApp context.CancelFunc,
) *Service {
	return &Service{
		env:     env,
		pool:    pool,
		reg:     reg,
		store:   store,
		th:      th,
		stopApp: stopApp,
	}
}

// Start запускает цикл меню в отдельной горутине. Повторные вызовы игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	})
}

// Stop завершает CLI: останавливает приложение, прерывает readline и дожидается
// завершения цикла меню.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.stopApp != nil {
			s.stopApp()
		}
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// run — основной цикл: печать меню, чтение выбора, выполнение действия.
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Printf("Telegram Session Manager v%s (%d credentials, store: %s)\n",
		version.Version, s.pool.Size(), s.store.Dir())

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		printMenu()
		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			if s.stopApp != nil {
				s.stopApp()
			}
			return
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		action, ok := parseAction(trimmed)
		if !ok {
			pr.ErrPrintln("unknown menu option:", trimmed)
			continue
		}
		if s.dispatch(ctx, action) {
			return
		}
	}
}

// parseAction разбирает непустой ввод оператора в Action.
func parseAction(line string) (Action, bool) {
	n, err := strconv.Atoi(line)
	if err != nil || n < 0 || n > int(ActionPoolUsage) {
		return ActionExit, false
	}
	return Action(n), true
}

// printMenu печатает меню действий.
func printMenu() {
	pr.Println("")
	for _, e := range menuEntries {
		pr.Printf("  %2d. %s\n", int(e.action), e.title)
	}
}

// dispatch выполняет выбранное действие. Возвращает true, если CLI должен завершиться.
// Единственное место диспетчеризации: новые действия добавляются сюда и в menuEntries.
func (s *Service) dispatch(ctx context.Context, action Action) (exit bool) {
	switch action {
	case ActionExit:
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case ActionCreateSession:
		s.handleCreateSession(ctx)
	case ActionListSessions:
		s.handleListSessions()
	case ActionShowSession:
		s.handleShowSession()
	case ActionCheckHealth:
		s.handleCheckHealth(ctx)
	case ActionBulkCheck:
		s.handleBulkCheck(ctx)
	case ActionTerminateDevices:
		s.handleTerminateDevices(ctx)
	case ActionUpdateProfile:
		s.handleUpdateProfile(ctx)
	case ActionClearContacts:
		s.handleClearContacts(ctx)
	case ActionDeleteDialogs:
		s.handleDeleteDialogs(ctx)
	case ActionReadOTP:
		s.handleReadOTP(ctx)
	case ActionManage2FA:
		s.handleManage2FA(ctx)
	case ActionEditNotes:
		s.handleEditNotes()
	case ActionDeleteSession:
		s.handleDeleteSession()
	case ActionCleanup:
		s.handleCleanup(ctx)
	case ActionBackup:
		s.handleBackup()
	case ActionExportCSV:
		s.handleExportCSV()
	case ActionStats:
		s.handleStats()
	case ActionPoolUsage:
		s.handlePoolUsage()
	}
	return false
}

// withClient подключает сессию phone и выполняет fn. Соединение закрывается
// по завершении независимо от исхода. Неавторизованная сессия — не ошибка
// подключения: оператору сообщается, fn не вызывается.
func (s *Service) withClient(ctx context.Context, phone string, fn func(client *tgclient.Client) error) error {
	cred, err := s.pool.Acquire()
	if err != nil {
		return err
	}

	client := tgclient.New(phone, cred, tgclient.Deps{
		Env:       &s.env,
		Store:     s.store,
		Registry:  s.reg,
		Throttler: s.th,
	})
	defer client.Disconnect()

	var authorized bool
	err = s.th.Do(ctx, func() error {
		var connErr error
		authorized, connErr = client.Connect(ctx)
		return connErr
	})
	if err != nil {
		return err
	}
	if !authorized {
		pr.ErrPrintf("session %s is not authorized anymore; marked inactive\n", phone)
		return nil
	}
	return fn(client)
}
