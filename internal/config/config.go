package config

import (
    "log"
    "strings"
    "time"

    "github.com/spf13/viper"
)

type Config struct {
    Server struct {
        Port     string
        LogLevel string
    }
    Session struct {
        IdleTimeoutSec     int
        BindPromptInterval time.Duration
        ExitCommands       []string
        AuthSecret         string
    }
    VAD struct {
        StartFrames  int
        EndFrames    int
        WindowFrames int
    }
    Reorder struct {
        Capacity int
    }
    ASR struct {
        BaseURL string
        APIKey  string
        Model   string
    }
    LLM struct {
        BaseURL      string
        APIKey       string
        Model        string
        SystemPrompt string
        MaxToolDepth int
    }
    TTS struct {
        BaseURL string
        APIKey  string
        Voice   string
    }
    Manage struct {
        BaseURL string
        Secret  string
    }
    History struct {
        RedisAddr string
        TTL       time.Duration
    }
    Scheduler struct {
        Interval time.Duration
    }
}

func Load() Config {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    // Defaults
    v.SetDefault("server.port", "8000")
    v.SetDefault("server.log_level", "info")

    v.SetDefault("session.idle_timeout_sec", 120)
    v.SetDefault("session.bind_prompt_interval_sec", 60)
    v.SetDefault("session.exit_commands", "goodbye,exit")

    v.SetDefault("vad.start_frames", 2)
    v.SetDefault("vad.end_frames", 5)
    v.SetDefault("vad.window_frames", 5)

    v.SetDefault("reorder.capacity", 20)

    v.SetDefault("asr.model", "paraformer-realtime")
    v.SetDefault("llm.model", "gpt-4o-mini")
    v.SetDefault("llm.max_tool_depth", 5)
    v.SetDefault("llm.system_prompt", "You are a warm, patient voice companion for elderly users. Keep answers short and easy to hear.")
    v.SetDefault("tts.voice", "default")

    v.SetDefault("history.ttl_hours", 24)
    v.SetDefault("scheduler.interval_sec", 30)

    // Map envs
    v.BindEnv("server.port", "PORT")
    v.BindEnv("server.log_level", "LOG_LEVEL")

    v.BindEnv("session.idle_timeout_sec", "SESSION_IDLE_TIMEOUT_SEC")
    v.BindEnv("session.bind_prompt_interval_sec", "SESSION_BIND_PROMPT_INTERVAL_SEC")
    v.BindEnv("session.exit_commands", "SESSION_EXIT_COMMANDS")
    v.BindEnv("session.auth_secret", "SESSION_AUTH_SECRET")

    v.BindEnv("vad.start_frames", "VAD_START_FRAMES")
    v.BindEnv("vad.end_frames", "VAD_END_FRAMES")
    v.BindEnv("vad.window_frames", "VAD_WINDOW_FRAMES")

    v.BindEnv("reorder.capacity", "REORDER_CAPACITY")

    v.BindEnv("asr.base_url", "ASR_BASE_URL")
    v.BindEnv("asr.api_key", "ASR_API_KEY")
    v.BindEnv("asr.model", "ASR_MODEL")

    v.BindEnv("llm.base_url", "LLM_BASE_URL")
    v.BindEnv("llm.api_key", "LLM_API_KEY")
    v.BindEnv("llm.model", "LLM_MODEL")
    v.BindEnv("llm.system_prompt", "LLM_SYSTEM_PROMPT")
    v.BindEnv("llm.max_tool_depth", "LLM_MAX_TOOL_DEPTH")

    v.BindEnv("tts.base_url", "TTS_BASE_URL")
    v.BindEnv("tts.api_key", "TTS_API_KEY")
    v.BindEnv("tts.voice", "TTS_VOICE")

    v.BindEnv("manage.base_url", "MANAGE_BASE_URL")
    v.BindEnv("manage.secret", "MANAGE_SECRET")

    v.BindEnv("history.redis_addr", "HISTORY_REDIS_ADDR")
    v.BindEnv("history.ttl_hours", "HISTORY_TTL_HOURS")

    v.BindEnv("scheduler.interval_sec", "SCHEDULER_INTERVAL_SEC")

    var c Config
    c.Server.Port = v.GetString("server.port")
    c.Server.LogLevel = v.GetString("server.log_level")

    c.Session.IdleTimeoutSec = v.GetInt("session.idle_timeout_sec")
    c.Session.BindPromptInterval = time.Duration(v.GetInt("session.bind_prompt_interval_sec")) * time.Second
    c.Session.ExitCommands = splitCommands(v.GetString("session.exit_commands"))
    c.Session.AuthSecret = v.GetString("session.auth_secret")

    c.VAD.StartFrames = v.GetInt("vad.start_frames")
    c.VAD.EndFrames = v.GetInt("vad.end_frames")
    c.VAD.WindowFrames = v.GetInt("vad.window_frames")

    c.Reorder.Capacity = v.GetInt("reorder.capacity")

    c.ASR.BaseURL = v.GetString("asr.base_url")
    c.ASR.APIKey = v.GetString("asr.api_key")
    c.ASR.Model = v.GetString("asr.model")

    c.LLM.BaseURL = v.GetString("llm.base_url")
    c.LLM.APIKey = v.GetString("llm.api_key")
    c.LLM.Model = v.GetString("llm.model")
    c.LLM.SystemPrompt = v.GetString("llm.system_prompt")
    c.LLM.MaxToolDepth = v.GetInt("llm.max_tool_depth")

    c.TTS.BaseURL = v.GetString("tts.base_url")
    c.TTS.APIKey = v.GetString("tts.api_key")
    c.TTS.Voice = v.GetString("tts.voice")

    c.Manage.BaseURL = v.GetString("manage.base_url")
    c.Manage.Secret = v.GetString("manage.secret")

    c.History.RedisAddr = v.GetString("history.redis_addr")
    c.History.TTL = time.Duration(v.GetInt("history.ttl_hours")) * time.Hour

    c.Scheduler.Interval = time.Duration(v.GetInt("scheduler.interval_sec")) * time.Second

    log.Printf("config loaded: port=%s manage=%s redis=%s", c.Server.Port, c.Manage.BaseURL, c.History.RedisAddr)
    return c
}

func splitCommands(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}
