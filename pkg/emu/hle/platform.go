package hle

// RegisterPlatform populates a registry with the built-in platform classes:
// activity lifecycle, canvas drawing, logging and intents. Called once at
// startup, before the registry is frozen.
func RegisterPlatform(reg *Registry) error {
	entries := []struct {
		class   string
		method  string
		sig     Signature
		handler Handler
	}{
		{"Activity", "onCreate", Sig(Void, TypeU32), activityOnCreate},
		{"Activity", "onDestroy", Sig(Void), activityOnDestroy},
		{"Activity", "finish", Sig(Void), activityFinish},

		{"Canvas", "fillColor", Sig(Void, TypeU32), canvasFillColor},
		{"Canvas", "clear", Sig(Void), canvasClear},
		{"Canvas", "drawRect", Sig(Void, TypeU32, TypeU32, TypeU32, TypeU32), canvasDrawRect},
		{"Canvas", "drawPixel", Sig(Void, TypeU32, TypeU32), canvasDrawPixel},
		{"Canvas", "present", Sig(Void), canvasPresent},

		{"Log", "i", Sig(Void, TypeU32, TypeU32), logInfo},
		{"Log", "e", Sig(Void, TypeU32, TypeU32), logError},

		{"Intent", "send", Sig(Void, TypeU32, TypeU32), intentSend},
		{"Intent", "poll", Sig(TypeU32), intentPoll},
	}

	for _, entry := range entries {
		if err := reg.Register(entry.class, entry.method, entry.sig, entry.handler); err != nil {
			return err
		}
	}

	return nil
}

func activityOnCreate(env *Env, args []Value) (Value, error) {
	env.created = true
	env.Log.Info("activity created", "flags", args[0].U32())
	return VoidValue, nil
}

func activityOnDestroy(env *Env, args []Value) (Value, error) {
	env.Log.Info("activity destroyed")
	return VoidValue, nil
}

func activityFinish(env *Env, args []Value) (Value, error) {
	env.finished = true
	return VoidValue, nil
}

func canvasFillColor(env *Env, args []Value) (Value, error) {
	env.color = args[0].U32()
	return VoidValue, nil
}

func canvasClear(env *Env, args []Value) (Value, error) {
	env.fillRect(0, 0, env.width, env.height, env.color)
	return VoidValue, nil
}

func canvasDrawRect(env *Env, args []Value) (Value, error) {
	env.fillRect(int(args[0].U32()), int(args[1].U32()), int(args[2].U32()), int(args[3].U32()), env.color)
	return VoidValue, nil
}

func canvasDrawPixel(env *Env, args []Value) (Value, error) {
	env.setPixel(int(args[0].U32()), int(args[1].U32()), env.color)
	return VoidValue, nil
}

func canvasPresent(env *Env, args []Value) (Value, error) {
	env.present()
	return VoidValue, nil
}

func logInfo(env *Env, args []Value) (Value, error) {
	env.Log.Info("guest log", "tag", args[0].U32(), "value", args[1].U32())
	return VoidValue, nil
}

func logError(env *Env, args []Value) (Value, error) {
	env.Log.Error("guest log", "tag", args[0].U32(), "value", args[1].U32())
	return VoidValue, nil
}

func intentSend(env *Env, args []Value) (Value, error) {
	env.intents = append(env.intents, Intent{Kind: args[0].U32(), Arg: args[1].U32()})
	return VoidValue, nil
}

func intentPoll(env *Env, args []Value) (Value, error) {
	if len(env.intents) == 0 {
		return U32(0), nil
	}
	intent := env.intents[0]
	env.intents = env.intents[1:]
	return U32(intent.Kind), nil
}
