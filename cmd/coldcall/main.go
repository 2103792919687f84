// Command coldcall is a terminal client for practice calls: it dials a
// scenario, streams microphone audio to the AI prospect, prints the live
// transcript, and shows the coaching scorecard when the call ends.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/FeliciaLa/coldcall-pro/internal/call"
	"github.com/FeliciaLa/coldcall-pro/internal/scorecard"
	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/sirupsen/logrus"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "practice server URL")
	scenarioID := flag.String("scenario", "", "scenario to dial (see -list)")
	list := flag.Bool("list", false, "list available scenarios")
	buy := flag.Bool("buy", false, "print a checkout link for more calls")
	textOnly := flag.Bool("text", false, "transcript-only session over websocket (no audio devices)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	api, err := newAPIClient(*server)
	if err != nil {
		fatal(err)
	}
	ctx := context.Background()

	if *list {
		listScenarios(ctx, api)
		return
	}
	if *buy {
		url, err := api.Checkout(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Println("Open this link to buy more calls:")
		fmt.Println("  " + url)
		return
	}
	if *scenarioID == "" {
		fmt.Fprintln(os.Stderr, "usage: coldcall -scenario <id>   (coldcall -list to see scenarios)")
		os.Exit(2)
	}

	sc, err := scenario.Get(*scenarioID)
	if err != nil {
		fatal(fmt.Errorf("unknown scenario %q, try -list", *scenarioID))
	}

	access, err := api.Access(ctx)
	if err != nil {
		fatal(fmt.Errorf("reach server: %w", err))
	}
	if !access.CanSimulate {
		fmt.Println("You're out of practice calls. Run with -buy to unlock more.")
		os.Exit(1)
	}
	wasFree := access.HasFreeSim

	if *textOnly {
		textSession(ctx, api, sc, wasFree)
		return
	}

	engine, err := newAudioEngine()
	if err != nil {
		fatal(err)
	}
	defer engine.Close()
	spk, err := newSpeaker(engine)
	if err != nil {
		fatal(err)
	}
	defer spk.Close()

	fmt.Printf("Dialing %s (%s, %s at %s)...\n", sc.Name, sc.ProspectName, sc.ProspectTitle, sc.Company)
	fmt.Println("Objective: " + sc.Objective)
	fmt.Println("Press Enter to hang up, type m to mute/unmute.")
	fmt.Println()

	done := make(chan struct{})
	var ctrl *call.Controller
	ctrl = call.New(sc, call.Deps{
		Sessions: api,
		Media:    &micSource{engine: engine},
		Peers:    call.PionPeerFactory(spk.PlayRemoteTrack, func() { ctrl.End() }),
		Signaler: realtime.NewClient(""),
		Ring:     newRinger(engine),
	}, call.Options{
		OnWarn: func() {
			fmt.Println("  [time is almost up -- wrap up the call]")
		},
		OnTranscript: func(e call.Entry) {
			who := "You"
			if e.Speaker == call.SpeakerPersona {
				who = sc.ProspectName
			}
			fmt.Printf("%s: %s\n", who, e.Text)
		},
		OnEnd: func(transcript []call.Entry, durationSeconds int) {
			defer close(done)
			fmt.Printf("\nCall ended after %s.\n", (time.Duration(durationSeconds) * time.Second).String())
			if durationSeconds > 0 && wasFree {
				if err := api.CompleteFreeCall(ctx, sc.ID, durationSeconds); err != nil {
					logrus.WithError(err).Warn("could not update free allowance")
				}
			}
			if len(transcript) == 0 {
				return
			}
			fmt.Println("Generating your scorecard...")
			result, err := api.Scorecard(ctx, sc.ID, transcript, durationSeconds)
			if err != nil {
				fmt.Println("Scorecard unavailable: " + err.Error())
				return
			}
			printScorecard(result)
		},
	})

	if err := ctrl.Start(ctx); err != nil {
		fatal(err)
	}

	// Surface connect failures; they never reach OnEnd.
	go func() {
		for {
			time.Sleep(200 * time.Millisecond)
			switch ctrl.State() {
			case call.StateError:
				kind, cause := ctrl.Err()
				fmt.Println(kind.Message())
				logrus.WithError(cause).Debug("connect failed")
				ctrl.End()
				return
			case call.StateEnded:
				return
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		ctrl.End()
	}()

	go func() {
		reader := bufio.NewReader(os.Stdin)
		muted := false
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			switch strings.TrimSpace(line) {
			case "m":
				muted = !muted
				ctrl.Mute(muted)
				if muted {
					fmt.Println("  [muted]")
				} else {
					fmt.Println("  [unmuted]")
				}
			default:
				ctrl.End()
				return
			}
		}
	}()

	<-done
}

// textSession follows the call over the provider's websocket event stream
// instead of a peer connection. No microphone or playback is opened; the
// session's spoken transcript is printed as it arrives.
func textSession(ctx context.Context, api *apiClient, sc *scenario.Scenario, wasFree bool) {
	sess, err := api.Session(ctx, sc.ID)
	if err != nil {
		fatal(err)
	}
	stream, err := realtime.DialEvents(ctx, "", sess.Token, sess.Model)
	if err != nil {
		fatal(fmt.Errorf("open event stream: %w", err))
	}
	defer stream.Close()

	fmt.Printf("Following %s as text (%s answers). Ctrl-C to hang up.\n\n", sc.Name, sc.ProspectName)
	fmt.Printf("%s: %s\n", sc.ProspectName, sc.Greeting)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		stream.Close()
	}()

	started := time.Now()
	transcript := []call.Entry{{Speaker: call.SpeakerPersona, Text: sc.Greeting}}
	for ev := range stream.Events() {
		speaker, who := call.SpeakerPersona, sc.ProspectName
		if ev.Kind == realtime.EventCallerUtterance {
			speaker, who = call.SpeakerCaller, "You"
		}
		fmt.Printf("%s: %s\n", who, ev.Text)
		transcript = append(transcript, call.Entry{Speaker: speaker, Text: ev.Text})
	}

	durationSeconds := int(time.Since(started) / time.Second)
	fmt.Printf("\nCall ended after %s.\n", (time.Duration(durationSeconds) * time.Second).String())
	if durationSeconds > 0 && wasFree {
		if err := api.CompleteFreeCall(ctx, sc.ID, durationSeconds); err != nil {
			logrus.WithError(err).Warn("could not update free allowance")
		}
	}
	fmt.Println("Generating your scorecard...")
	result, err := api.Scorecard(ctx, sc.ID, transcript, durationSeconds)
	if err != nil {
		fmt.Println("Scorecard unavailable: " + err.Error())
		return
	}
	printScorecard(result)
}

func listScenarios(ctx context.Context, api *apiClient) {
	list, err := api.Scenarios(ctx)
	if err != nil {
		fatal(err)
	}
	for _, sc := range list {
		fmt.Printf("%-18s %-9s %s -- %s, %s at %s\n",
			sc.ID, sc.Difficulty, sc.Name, sc.ProspectName, sc.ProspectTitle, sc.Company)
	}
}

func printScorecard(r *scorecard.Result) {
	fmt.Println()
	fmt.Printf("=== Scorecard: %d/100 (%s) ===\n", r.OverallScore, r.Outcome)
	fmt.Println(r.OverallSummary)
	fmt.Println()
	printSkill("Opener & hook", r.Skills.OpenerHook)
	printSkill("Discovery questions", r.Skills.DiscoveryQuestions)
	printSkill("Objection handling", r.Skills.ObjectionHandling)
	printSkill("Close & next steps", r.Skills.CloseNextSteps)
	if len(r.KeyMoments) > 0 {
		fmt.Println("Key moments:")
		for _, m := range r.KeyMoments {
			fmt.Printf("  %s  %s\n        tip: %s\n", m.TimestampEstimate, m.WhatHappened, m.CoachingTip)
		}
		fmt.Println()
	}
	fmt.Println("Top strength:    " + r.TopStrength)
	fmt.Println("Focus next time: " + r.TopImprovement)
}

func printSkill(label string, grade scorecard.SkillGrade) {
	fmt.Printf("%-20s %3d/100  %s\n", label, grade.Score, grade.Feedback)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "coldcall: "+err.Error())
	os.Exit(1)
}
