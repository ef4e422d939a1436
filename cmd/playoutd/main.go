package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/cobra"

	"github.com/richinsley/goplayout/amcp"
	"github.com/richinsley/goplayout/channel"
	"github.com/richinsley/goplayout/config"
	"github.com/richinsley/goplayout/consumer"
	"github.com/richinsley/goplayout/format"
	"github.com/richinsley/goplayout/frame"
	"github.com/richinsley/goplayout/glfwcontext"
	"github.com/richinsley/goplayout/gpu"
	"github.com/richinsley/goplayout/headless"
	"github.com/richinsley/goplayout/producer"
	"github.com/richinsley/goplayout/producer/color"
	"github.com/richinsley/goplayout/producer/image"
	"github.com/richinsley/goplayout/producer/media"
)

var configPath string

func init() {
	// GLFW needs the process main thread.
	runtime.LockOSThread()
}

func main() {
	root := &cobra.Command{
		Use:   "playoutd",
		Short: "Real-time playout and compositing server",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file")

	root.AddCommand(runCmd(), formatsCmd(), probeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the playout server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	setupLogging(cfg)

	channels := make(map[int]*channel.Channel)
	for i, chCfg := range cfg.Channels {
		ch, err := buildChannel(chCfg)
		if err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
		channels[i+1] = ch
	}

	registry := producer.NewRegistry(color.Factory, image.Factory, media.Factory)
	srv := amcp.NewServer(channels, registry, amcp.Paths{
		Media:    cfg.MediaFolder,
		Template: cfg.TemplateFolder,
		Data:     cfg.DataFolder,
	})

	tcp := amcp.NewTCPServer(srv)
	if err := tcp.Listen(fmt.Sprintf(":%d", cfg.AMCP.Port)); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	_ = tcp.Close()
	for _, ch := range channels {
		ch.Shutdown()
	}
	return nil
}

func buildChannel(chCfg config.ChannelConfig) (*channel.Channel, error) {
	desc, err := format.FromName(chCfg.VideoMode)
	if err != nil {
		return nil, err
	}

	var consumers []consumer.Consumer
	for _, cc := range chCfg.Consumers {
		c, err := buildConsumer(cc)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}

	var dev gpu.Device
	switch chCfg.Renderer {
	case "", "opengl":
		ctx, err := glfwcontext.New("compositor "+desc.Name, 64, 64, false)
		if err != nil {
			return nil, fmt.Errorf("compositor context: %w", err)
		}
		dev = gpu.NewGLDevice(ctx)
	case "egl":
		ctx, err := headless.New(desc.Width, desc.Height)
		if err != nil {
			return nil, err
		}
		dev = gpu.NewGLDevice(ctx)
	case "software":
		dev = gpu.NewSoftwareDevice()
	default:
		return nil, fmt.Errorf("unknown renderer %q", chCfg.Renderer)
	}
	return channel.New(desc, dev, consumers)
}

func buildConsumer(cc config.ConsumerConfig) (consumer.Consumer, error) {
	switch cc.Type {
	case "screen":
		scale, err := consumer.ParseScalePolicy(cc.Scale)
		if err != nil {
			return nil, err
		}
		return consumer.NewScreen(scale, cc.Sync), nil
	case "file":
		if cc.Path == "" {
			return nil, fmt.Errorf("file consumer needs a path")
		}
		return consumer.NewFile(cc.Path, cc.Codec), nil
	case "audio":
		return consumer.NewAudio(), nil
	case "sdi":
		return nil, fmt.Errorf("sdi consumer requires a card driver; none is linked into this build")
	}
	return nil, fmt.Errorf("unknown consumer type %q", cc.Type)
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if cfg.LogFolder == "" {
		return
	}
	if err := os.MkdirAll(cfg.LogFolder, 0o755); err != nil {
		log.Warn("cannot create log folder", "err", err)
		return
	}
	name, err := strftime.Format("playoutd-%Y%m%d-%H%M%S.log", time.Now())
	if err != nil {
		name = "playoutd.log"
	}
	f, err := os.Create(filepath.Join(cfg.LogFolder, name))
	if err != nil {
		log.Warn("cannot create log file", "err", err)
		return
	}
	log.SetOutput(f)
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported video modes",
		Run: func(cmd *cobra.Command, args []string) {
			var names []string
			for _, d := range format.All() {
				names = append(names, fmt.Sprintf("%-12s %4dx%-4d %-11s %7.3f fps  cadence %v",
					d.Name, d.Width, d.Height, d.Mode, d.FPS(), d.Cadence))
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Println(n)
			}
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Probe a media file with the playout decoder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := format.Get(format.X1080p2500)
			p, err := media.New(frame.NewFactory(desc), args[0], false)
			if err != nil {
				return err
			}
			defer p.Close()

			n := 0
			for n < 25 {
				if _, err := p.Receive(desc.Cadence[0]); err == producer.EOF {
					break
				}
				n++
				// Give the decode worker a head start on cold caches.
				time.Sleep(desc.FramePeriod())
			}
			fmt.Printf("%s: decoded %d frames at %s\n", args[0], n, desc.Name)
			return nil
		},
	}
}
