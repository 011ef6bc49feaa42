package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/internal/preview"
	"github.com/storyva/storyva/pkg/provider/tts"
)

func init() {
	cmd := &cobra.Command{
		Use:   "preview [text...]",
		Short: "Render an audio preview of a marked-up line",
		Long: "Synthesise a dialogue line through the configured TTS provider " +
			"and write the audio file to the preview output directory.",
		Args: cobra.MinimumNArgs(1),
		Run:  runPreview,
	}
	cmd.Flags().StringP("gender", "g", "", "Character gender: male, female, or neutral (default: inferred)")
	RootCmd.AddCommand(cmd)
}

func runPreview(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(false)
	if err != nil {
		exitErr("load config", err)
	}
	logger := initLogger(cfg)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	synth, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		exitErr("create tts provider", err)
	}

	voices := map[preview.Gender]tts.VoiceProfile{}
	if v := cfg.Preview.Voices.Male; v != "" {
		voices[preview.Male] = tts.VoiceProfile{ID: v, Provider: cfg.Providers.TTS.Name}
	}
	if v := cfg.Preview.Voices.Female; v != "" {
		voices[preview.Female] = tts.VoiceProfile{ID: v, Provider: cfg.Providers.TTS.Name}
	}
	if v := cfg.Preview.Voices.Neutral; v != "" {
		voices[preview.Neutral] = tts.VoiceProfile{ID: v, Provider: cfg.Providers.TTS.Name}
	}

	outputDir := cfg.Preview.OutputDir
	if outputDir == "" {
		outputDir = "previews"
	}
	popts := []preview.Option{preview.WithLogger(logger)}
	if cfg.Preview.Format != "" {
		popts = append(popts, preview.WithFormat(cfg.Preview.Format))
	}

	renderer, err := preview.NewRenderer(synth, voices, outputDir, popts...)
	if err != nil {
		exitErr("create renderer", err)
	}

	text := strings.Join(args, " ")
	genderFlag, _ := cmd.Flags().GetString("gender")
	gender := preview.Gender(genderFlag)
	if genderFlag == "" {
		gender = preview.InferGender(text, "")
	}

	res, err := renderer.Render(cmd.Context(), text, gender)
	if err != nil {
		exitErr("render preview", err)
	}
	fmt.Printf("Audio preview generated successfully. File saved to: %s (Voice: %s)\n", res.Path, res.Gender)
}
