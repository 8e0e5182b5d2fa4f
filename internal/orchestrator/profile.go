package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradecouncil/internal/config"
)

// WeightProfile 是可选的 yaml 权重档案，覆盖配置里的投票参数。
type WeightProfile struct {
	Technical     *float64 `yaml:"technical"`
	Sentiment     *float64 `yaml:"sentiment"`
	Risk          *float64 `yaml:"risk"`
	Mood          *float64 `yaml:"mood"`
	MinConfidence *float64 `yaml:"min_confidence"`
}

// LoadWeights 从配置与可选 profile 文件合成最终权重。
// profile 路径为空时直接用配置值。
func LoadWeights(cfg config.VoteConfig) (Weights, float64, error) {
	weights := Weights{
		Technical: cfg.TechnicalWeight,
		Sentiment: cfg.SentimentWeight,
		Risk:      cfg.RiskWeight,
	}
	minConfidence := cfg.MinConfidence
	if cfg.ProfilePath == "" {
		return weights, minConfidence, nil
	}
	raw, err := os.ReadFile(cfg.ProfilePath)
	if err != nil {
		return weights, minConfidence, fmt.Errorf("reading weight profile failed (%s): %w", cfg.ProfilePath, err)
	}
	var profile WeightProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return weights, minConfidence, fmt.Errorf("parsing weight profile failed (%s): %w", cfg.ProfilePath, err)
	}
	apply := func(dst *float64, src *float64, name string) error {
		if src == nil {
			return nil
		}
		if *src < 0 || *src > 1 {
			return fmt.Errorf("weight profile: %s must be within [0,1], got %v", name, *src)
		}
		*dst = *src
		return nil
	}
	if err := apply(&weights.Technical, profile.Technical, "technical"); err != nil {
		return weights, minConfidence, err
	}
	if err := apply(&weights.Sentiment, profile.Sentiment, "sentiment"); err != nil {
		return weights, minConfidence, err
	}
	if err := apply(&weights.Risk, profile.Risk, "risk"); err != nil {
		return weights, minConfidence, err
	}
	if err := apply(&weights.Mood, profile.Mood, "mood"); err != nil {
		return weights, minConfidence, err
	}
	if profile.MinConfidence != nil {
		if *profile.MinConfidence <= 0 || *profile.MinConfidence > 1 {
			return weights, minConfidence, fmt.Errorf("weight profile: min_confidence must be within (0,1]")
		}
		minConfidence = *profile.MinConfidence
	}
	return weights, minConfidence, nil
}
