package timeslot

// 时间槽生成器：为一批消息计算拟人化的发送时刻。
// 纯算法，不依赖外部存储；调用方只持久化每条消息最终拿到的 sendAt。

import (
	"errors"
	"math/rand"
	"time"
)

const secondsPerDay = 24 * 60 * 60

var (
	ErrWindowInvalid = errors.New("timeslot: end time must be after start time")
	ErrDelayInvalid  = errors.New("timeslot: delays must not be negative")
)

// Config 批次节奏参数
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BatchSize  int           // <=0 表示不分批
	BatchDelay time.Duration // 批与批之间的间隔
	StartDate  time.Time     // 零值表示当天
	StartTime  string        // "15:04:05"，空表示 00:00:00
	EndTime    string        // "15:04:05"，空表示 23:59:59
}

// Generator 产出单调不减的时间槽序列，每个活动/恢复/培育序列独占一个实例
type Generator struct {
	cfg      Config
	startSec int
	endSec   int
	cur      time.Time
	count    int
	rnd      *rand.Rand
	now      func() time.Time
}

// New 构建生成器，锚点取 max(now, StartDate@StartTime) 并钳入当日窗口
func New(cfg Config) (*Generator, error) {
	return newGenerator(cfg, time.Now)
}

// NewWithNow 与 New 相同，时钟由调用方注入
func NewWithNow(cfg Config, now func() time.Time) (*Generator, error) {
	return newGenerator(cfg, now)
}

func newGenerator(cfg Config, now func() time.Time) (*Generator, error) {
	if cfg.MinDelay < 0 || cfg.MaxDelay < 0 || cfg.BatchDelay < 0 {
		return nil, ErrDelayInvalid
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MinDelay, cfg.MaxDelay = cfg.MaxDelay, cfg.MinDelay
	}

	startSec, err := parseDaySeconds(cfg.StartTime, 0)
	if err != nil {
		return nil, err
	}
	endSec, err := parseDaySeconds(cfg.EndTime, secondsPerDay-1)
	if err != nil {
		return nil, err
	}
	if endSec <= startSec {
		return nil, ErrWindowInvalid
	}

	g := &Generator{
		cfg:      cfg,
		startSec: startSec,
		endSec:   endSec,
		rnd:      rand.New(rand.NewSource(now().UnixNano())),
		now:      now,
	}
	g.cur = g.anchor()

	return g, nil
}

// Next 产出下一个时间槽
func (g *Generator) Next() time.Time {
	if g.count > 0 {
		if g.cfg.BatchSize > 0 && g.count%g.cfg.BatchSize == 0 {
			g.cur = g.cur.Add(g.cfg.BatchDelay)
		} else {
			g.cur = g.cur.Add(g.randomDelay())
		}
	}

	// 越过窗口尾部则滚动到次日窗口头部；跨过午夜落在窗口前的钳回当日头部
	if sec := daySeconds(g.cur); sec > g.endSec {
		g.cur = g.dayStart(g.cur.AddDate(0, 0, 1))
	} else if sec < g.startSec {
		g.cur = g.dayStart(g.cur)
	}

	g.count++
	return g.cur
}

// Emitted 返回已产出的时间槽数量
func (g *Generator) Emitted() int {
	return g.count
}

func (g *Generator) anchor() time.Time {
	now := g.now()

	base := cfgDate(g.cfg.StartDate, now)
	t := g.dayStart(base)
	if now.After(t) {
		t = now
	}

	if sec := daySeconds(t); sec < g.startSec {
		t = g.dayStart(t)
	} else if sec > g.endSec {
		t = g.dayStart(t.AddDate(0, 0, 1))
	}

	return t
}

func (g *Generator) randomDelay() time.Duration {
	minSec := int64(g.cfg.MinDelay / time.Second)
	maxSec := int64(g.cfg.MaxDelay / time.Second)
	if maxSec <= minSec {
		return time.Duration(minSec) * time.Second
	}
	return time.Duration(minSec+g.rnd.Int63n(maxSec-minSec+1)) * time.Second
}

func (g *Generator) dayStart(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).
		Add(time.Duration(g.startSec) * time.Second)
}

func cfgDate(startDate, now time.Time) time.Time {
	if startDate.IsZero() {
		return now
	}
	return startDate
}

func daySeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func parseDaySeconds(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}
	return daySeconds(parsed), nil
}
