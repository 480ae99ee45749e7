package sqlinline

const QInsertGeneratedImage = `--sql 6ea1a909-bbd2-4f0f-94bb-990614b98ff9
insert into generated_images(
  user_id, request_id, prompt, refined_prompt, provider, storage_key, source_url, mime, bytes, width, height,
  aspect_ratio, fallback, properties
) values (
  $1::uuid, nullif($2::text, '')::uuid, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::bigint,
  $10::int, $11::int, $12::text, $13::boolean, coalesce($14::jsonb, '{}'::jsonb)
)
returning id, created_at;
`

const QSelectGeneratedImage = `--sql b43ed297-341c-43f0-a53c-2d97613c0a0a
select id, user_id, coalesce(request_id::text, ''), prompt, refined_prompt, provider, storage_key, source_url, mime,
  bytes, width, height, aspect_ratio, fallback, properties, created_at
from generated_images
where id = $1::uuid
  and user_id = $2::uuid
limit 1;
`

const QListGeneratedImages = `--sql bd1b09a3-be41-4454-910c-83c0f27e8544
select id, user_id, coalesce(request_id::text, ''), prompt, refined_prompt, provider, storage_key, source_url, mime,
  bytes, width, height, aspect_ratio, fallback, properties, created_at
from generated_images
where user_id = $1::uuid
order by created_at desc
limit $2::int offset $3::int;
`

const QListGeneratedImagesByRequest = `--sql 618976c3-bada-48b4-8fda-276077bc84f6
select id, user_id, coalesce(request_id::text, ''), prompt, refined_prompt, provider, storage_key, source_url, mime,
  bytes, width, height, aspect_ratio, fallback, properties, created_at
from generated_images
where request_id = $1::uuid
  and user_id = $2::uuid
order by created_at asc;
`

const QDeleteGeneratedImage = `--sql 0ba478f0-0e27-4396-b799-b8f350d4a602
delete from generated_images
where id = $1::uuid
  and user_id = $2::uuid
returning id, user_id, coalesce(request_id::text, ''), prompt, refined_prompt, provider, storage_key, source_url, mime,
  bytes, width, height, aspect_ratio, fallback, properties, created_at;
`
