package cron

import (
	"Horizon/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

// Manager 定时任务调度, 当前只有聊天记录归档
type Manager struct {
	engine      *cron.Cron
	archiveSpec string
	archiveJob  *job.TranscriptArchiveJob
}

func NewCronManager(archiveSpec string, archiveJob *job.TranscriptArchiveJob) *Manager {
	return &Manager{
		engine:      cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(slogLogger{}), cron.SkipIfStillRunning(slogLogger{}))),
		archiveSpec: archiveSpec,
		archiveJob:  archiveJob,
	}
}

// RegisterJobs 注册定时任务; archiveSpec 为空时不启用归档
func (s *Manager) RegisterJobs() error {
	if s.archiveSpec == "" || s.archiveJob == nil {
		log.Info("Transcript archive job disabled")
		return nil
	}
	id, err := s.engine.AddJob(s.archiveSpec, s.archiveJob)
	if err != nil {
		return err
	}
	log.Info("Transcript archive job registered", "spec", s.archiveSpec, "entry", id)
	return nil
}

// Start 注册并启动调度
func (s *Manager) Start() error {
	if err := s.RegisterJobs(); err != nil {
		return err
	}
	s.engine.Start()
	for _, e := range s.engine.Entries() {
		log.Info("Cron entry scheduled", "entry", e.ID, "next", e.Next)
	}
	return nil
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Manager) Stop() {
	log.Info("Cron engine stopping")
	<-s.engine.Stop().Done()
}

// slogLogger 适配 cron.Logger
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
