package app

import (
	"github.com/vk/trainlaunch/internal/registry"
	"github.com/vk/trainlaunch/modules/handwriting"
	"github.com/vk/trainlaunch/modules/lightning"
	"github.com/vk/trainlaunch/modules/logjob"
	"github.com/vk/trainlaunch/modules/runledger"
	"github.com/vk/trainlaunch/modules/socketio"
	"github.com/vk/trainlaunch/modules/torch"
	"github.com/vk/trainlaunch/modules/webhook"
)

// coreModules is the definitive list of all modules that are compiled into
// the trainlaunch binary.
var coreModules = []registry.Module{
	&torch.Module{},
	&lightning.Module{},
	&handwriting.Module{},
	&logjob.Module{},
	&runledger.Module{},
	&socketio.Module{},
	&webhook.Module{},
}
